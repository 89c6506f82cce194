// services/image_service.go
package services

import (
	"gorm.io/gorm"

	"geobets-core-service/models"

	"github.com/gofiber/fiber/v2"
)

type ImageService struct {
	DB *gorm.DB
}

func NewImageService(db *gorm.DB) *ImageService {
	return &ImageService{DB: db}
}

// imageView is what players get: id and URL, nothing that hints at the answer.
type imageView struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// ListImages handles GET /images — the active slice of the catalog mirror.
func (s *ImageService) ListImages(c *fiber.Ctx) error {
	var images []models.ImageMirror
	if err := s.DB.Where("is_active = ?", true).Limit(gameListCap).Find(&images).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch images"})
	}

	views := make([]imageView, 0, len(images))
	for _, img := range images {
		views = append(views, imageView{ID: img.ID, Title: img.Title, URL: img.PublicURL})
	}
	return c.JSON(fiber.Map{"images": views})
}
