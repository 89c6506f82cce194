package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"geobets-core-service/models"
	"geobets-core-service/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageSyncClient mirrors the media service's image catalog into our DB so
// game creation can resolve solution coordinates without a network hop.
type ImageSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewImageSyncClient(db *gorm.DB) *ImageSyncClient {
	baseURL := os.Getenv("MEDIA_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("MEDIA_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("GEOBETS_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("GEOBETS_SERVICE_TOKEN environment variable is required for image sync")
	}

	return &ImageSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		DB:         db,
		HTTPClient: utils.HTTPClient,
	}
}

func (c *ImageSyncClient) GetChangedImages(ctx context.Context, since time.Time) ([]models.ImageMirror, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/internal/images", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call media service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("media service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Images []models.ImageMirror `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode media service response: %w", err)
	}

	return response.Images, nil
}

// PollImages keeps the image mirror fresh on a fixed interval.
func PollImages(ctx context.Context, client *ImageSyncClient, pollInterval time.Duration) {
	log.Println("Starting image catalog polling (DB-backed)...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Image polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			images, err := client.GetChangedImages(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling images: %v", err)
				continue
			}

			count := len(images)
			if count == 0 {
				continue
			}

			for i := range images {
				images[i].LastSyncedAt = logTime
			}

			// Bulk upsert keyed on the catalog id (one statement on Postgres)
			if err := client.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"title",
						"public_url",
						"lat_e6",
						"lon_e6",
						"is_active",
						"last_synced_at",
						"updated_at",
					}),
				},
			).Create(&images).Error; err != nil {
				log.Printf("❌ Failed to upsert %d image(s) into image mirror: %v", count, err)
				// Do NOT advance lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Upserted %d image(s) into image mirror.", count)
		}
	}
}
