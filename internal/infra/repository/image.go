package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/humayat/internal/domain"
	"github.com/totegamma/humayat/internal/infra/database"
	"github.com/totegamma/humayat/internal/infra/database/models"
)

type ImageRepository struct {
	db *gorm.DB
}

func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) List(ctx context.Context) ([]domain.Image, error) {
	var rows []models.Image
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	images := make([]domain.Image, 0, len(rows))
	for _, row := range rows {
		images = append(images, toDomain(row))
	}
	return images, nil
}

func (r *ImageRepository) Get(ctx context.Context, id string) (domain.Image, error) {
	var row models.Image
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&row).Error
	if err := lookupError(err, id); err != nil {
		return domain.Image{}, err
	}
	return toDomain(row), nil
}

func (r *ImageRepository) Create(ctx context.Context, image domain.Image) (domain.Image, error) {
	row := models.Image{
		ID:         image.ID,
		Title:      image.Title,
		URL:        image.URL,
		MediaRef:   image.MediaRef,
		UploadedBy: image.UploadedBy,
		CreatedAt:  image.CreatedAt,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Create(&row).Error
	if err != nil {
		return domain.Image{}, err
	}
	return toDomain(row), nil
}

func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Image{}, "id = ?", id)
	return deleteError(result.RowsAffected, result.Error, id)
}

func lookupError(err error, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError{Resource: "image", ID: id}
	}
	return err
}

// deleteError reports a delete that matched no row as not found.
func deleteError(rowsAffected int64, err error, id string) error {
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.NotFoundError{Resource: "image", ID: id}
	}
	return nil
}

func (r *ImageRepository) Ping(ctx context.Context) error {
	return database.PingPostgres(ctx, r.db)
}

func toDomain(row models.Image) domain.Image {
	return domain.Image{
		ID:         row.ID,
		Title:      row.Title,
		URL:        row.URL,
		MediaRef:   row.MediaRef,
		UploadedBy: row.UploadedBy,
		CreatedAt:  row.CreatedAt,
	}
}
