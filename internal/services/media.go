package services

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/trektide/apiserver/internal/images"
	"github.com/trektide/apiserver/internal/storage"
)

// MediaService processes uploaded photos and stores them as fixed-size
// JPEGs in object storage. It returns the key that documents reference.
type MediaService struct {
	storage *storage.Storage
}

func NewMediaService(store *storage.Storage) *MediaService {
	return &MediaService{storage: store}
}

// StoreTourCover resizes and stores a tour cover image.
func (s *MediaService) StoreTourCover(ctx context.Context, tourID string, r io.Reader) (string, error) {
	data, err := images.ResizeJPEG(r, images.TourWidth, images.TourHeight)
	if err != nil {
		return "", err
	}
	key := storage.TourImageKey(fmt.Sprintf("tour-%s-%s-cover.jpg", tourID, shortID()))
	return key, s.put(ctx, key, data)
}

// StoreTourImage resizes and stores one tour gallery image.
func (s *MediaService) StoreTourImage(ctx context.Context, tourID string, index int, r io.Reader) (string, error) {
	data, err := images.ResizeJPEG(r, images.TourWidth, images.TourHeight)
	if err != nil {
		return "", err
	}
	key := storage.TourImageKey(fmt.Sprintf("tour-%s-%s-%d.jpg", tourID, shortID(), index))
	return key, s.put(ctx, key, data)
}

// StoreProfilePhoto center-crops and stores a profile photo.
func (s *MediaService) StoreProfilePhoto(ctx context.Context, accountID string, r io.Reader) (string, error) {
	data, err := images.SquareJPEG(r, images.ProfileSize)
	if err != nil {
		return "", err
	}
	key := storage.UserImageKey(fmt.Sprintf("user-%s-%s.jpg", accountID, shortID()))
	return key, s.put(ctx, key, data)
}

// Open streams a stored image for serving.
func (s *MediaService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.storage.Get(ctx, key)
}

func (s *MediaService) put(ctx context.Context, key string, data []byte) error {
	return s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), images.ContentType)
}

func shortID() string {
	return uuid.NewString()[:8]
}
