package gateway

import (
	"fmt"

	"pixelmint/pkg/logger"
	"pixelmint/pkg/s3"
)

// ArtifactStore persists generated images and returns their public URLs.
type ArtifactStore interface {
	Store(userID, jobID string, images [][]byte) ([]string, error)
}

type s3ArtifactStore struct {
	s3Client *s3.Client
	logger   *logger.Logger
}

func NewArtifactStore(s3Client *s3.Client, log *logger.Logger) ArtifactStore {
	return &s3ArtifactStore{
		s3Client: s3Client,
		logger:   log,
	}
}

func (s *s3ArtifactStore) Store(userID, jobID string, images [][]byte) ([]string, error) {
	urls := make([]string, 0, len(images))
	for i, image := range images {
		key := fmt.Sprintf("generations/%s/%s/%d.png", userID, jobID, i)
		url, err := s.s3Client.UploadBytes(key, image, "image/png")
		if err != nil {
			return nil, fmt.Errorf("failed to store artifact %d: %w", i, err)
		}
		urls = append(urls, url)
	}

	s.logger.Info("Stored %d artifacts for job %s", len(urls), jobID)
	return urls, nil
}
