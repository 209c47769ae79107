package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/naa-portal-api/internal/access"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

func TestArtifactRepositoryListNewestFirstByKind(t *testing.T) {
	repo := NewArtifactRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	older := models.Artifact{Kind: models.ArtifactKindAnnouncement, Title: "AGM notice", RequiredTier: tier.Public, ScopeKind: access.ScopeGlobal, PublishedAt: now.Add(-time.Hour)}
	newer := models.Artifact{Kind: models.ArtifactKindAnnouncement, Title: "Exam dates", RequiredTier: tier.Student, ScopeKind: access.ScopeInstitution, ScopeInstitution: "FUHSI", PublishedAt: now}
	resource := models.Artifact{Kind: models.ArtifactKindResource, Title: "Clinical guideline", RequiredTier: tier.Full, ScopeKind: access.ScopeGlobal, PublishedAt: now}
	for _, item := range []*models.Artifact{&older, &newer, &resource} {
		require.NoError(t, repo.Create(ctx, item))
	}

	items, err := repo.List(ctx, ArtifactFilter{Kind: models.ArtifactKindAnnouncement})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Exam dates", items[0].Title)
	require.Equal(t, access.Institution("FUHSI"), items[0].Scope())

	all, err := repo.List(ctx, ArtifactFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
}
