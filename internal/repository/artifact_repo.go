package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/models"
)

// ArtifactFilter narrows artifact queries.
type ArtifactFilter struct {
	Kind string
}

// ArtifactRepository persists gated resources and announcements.
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *models.Artifact) error
	GetByID(ctx context.Context, id uint) (models.Artifact, error)
	List(ctx context.Context, filter ArtifactFilter) ([]models.Artifact, error)
}

type artifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository constructs the artifact repository.
func NewArtifactRepository(db *gorm.DB) ArtifactRepository {
	return &artifactRepository{db: db}
}

func (r *artifactRepository) Create(ctx context.Context, artifact *models.Artifact) error {
	return r.db.WithContext(ctx).Create(artifact).Error
}

func (r *artifactRepository) GetByID(ctx context.Context, id uint) (models.Artifact, error) {
	var artifact models.Artifact
	if err := r.db.WithContext(ctx).First(&artifact, id).Error; err != nil {
		return models.Artifact{}, err
	}
	return artifact, nil
}

// List returns artifacts newest first. Gating happens in memory, so the full candidate set is loaded.
func (r *artifactRepository) List(ctx context.Context, filter ArtifactFilter) ([]models.Artifact, error) {
	query := r.db.WithContext(ctx).Model(&models.Artifact{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}

	var artifacts []models.Artifact
	if err := query.Order("published_at DESC").Order("id DESC").Find(&artifacts).Error; err != nil {
		return nil, err
	}
	return artifacts, nil
}
