package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/storage"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	MaxReceiptSize   = 5 * 1024 * 1024 // 5MB
	MinReceiptWidth  = 50
	MinReceiptHeight = 50
	ThumbnailWidth   = 200
	DisplayWidth     = 800
	JPEGQuality      = 85
)

var (
	ErrReceiptTooLarge             = errors.New("file too large. Maximum size is 5MB")
	ErrInvalidReceiptFormat        = errors.New("invalid format. Supported: JPEG, PNG")
	ErrReceiptTooSmall             = errors.New("image too small. Minimum 50x50 pixels")
	ErrInvalidReceiptData          = errors.New("invalid image data")
	ErrReceiptStorageNotConfigured = errors.New("receipt storage not configured")
	ErrReceiptNotFound             = errors.New("transaction has no receipt")
)

// AllowedReceiptExtensions maps extensions to content types
var AllowedReceiptExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

var receiptVariants = []struct {
	name     string
	maxWidth int
}{
	{"thumb", ThumbnailWidth},
	{"display", DisplayWidth},
	{"original", 0},
}

// ReceiptURLs holds presigned URLs for each stored variant
type ReceiptURLs struct {
	ID           string    `json:"id"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	DisplayURL   string    `json:"displayUrl"`
	OriginalURL  string    `json:"originalUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ReceiptService resizes receipt images and attaches them to transactions
type ReceiptService struct {
	store           storage.ObjectStore
	transactionRepo domain.TransactionRepository
	urlExpiry       time.Duration
}

// NewReceiptService creates a new ReceiptService. A nil store disables uploads.
func NewReceiptService(store storage.ObjectStore, transactionRepo domain.TransactionRepository, urlExpiry time.Duration) *ReceiptService {
	return &ReceiptService{
		store:           store,
		transactionRepo: transactionRepo,
		urlExpiry:       urlExpiry,
	}
}

// IsEnabled indicates whether uploads are supported (storage configured)
func (s *ReceiptService) IsEnabled() bool {
	return s != nil && s.store != nil
}

// validateAndDecode validates the upload and returns the decoded image
func (s *ReceiptService) validateAndDecode(data []byte, filename string) (image.Image, error) {
	if len(data) > MaxReceiptSize {
		return nil, ErrReceiptTooLarge
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := AllowedReceiptExtensions[ext]; !ok {
		return nil, ErrInvalidReceiptFormat
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidReceiptData
	}

	bounds := img.Bounds()
	if bounds.Dx() < MinReceiptWidth || bounds.Dy() < MinReceiptHeight {
		return nil, ErrReceiptTooSmall
	}

	return img, nil
}

// UploadReceipt stores thumb, display and original JPEG variants of a receipt and
// records the display variant on the transaction, replacing any earlier receipt.
func (s *ReceiptService) UploadReceipt(ctx context.Context, userID, transactionID string, data []byte, filename string) (*ReceiptURLs, error) {
	if !s.IsEnabled() {
		return nil, ErrReceiptStorageNotConfigured
	}

	transaction, err := s.transactionRepo.GetByID(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}

	img, err := s.validateAndDecode(data, filename)
	if err != nil {
		return nil, err
	}

	receiptID := uuid.New().String()
	basePath := fmt.Sprintf("%s/receipts/%s/%s", userID, transactionID, receiptID)

	var uploaded []string
	for _, variant := range receiptVariants {
		processed := img
		if variant.maxWidth > 0 && img.Bounds().Dx() > variant.maxWidth {
			processed = imaging.Resize(img, variant.maxWidth, 0, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, processed, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			s.deletePaths(ctx, uploaded)
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}

		objectPath := variantPath(basePath, variant.name)
		if _, err := s.store.Upload(ctx, objectPath, bytes.NewReader(buf.Bytes()), "image/jpeg", int64(buf.Len())); err != nil {
			s.deletePaths(ctx, uploaded)
			return nil, fmt.Errorf("failed to upload %s variant: %w", variant.name, err)
		}
		uploaded = append(uploaded, objectPath)
	}

	displayPath := variantPath(basePath, "display")
	if _, err := s.transactionRepo.Update(ctx, userID, transactionID, domain.TransactionPatch{ReceiptPath: &displayPath}); err != nil {
		s.deletePaths(ctx, uploaded)
		return nil, err
	}

	if transaction.ReceiptPath != nil {
		s.deleteAllVariants(ctx, *transaction.ReceiptPath)
	}

	log.Info().Str("user_id", userID).Str("transaction_id", transactionID).Str("receipt_id", receiptID).Msg("Receipt uploaded")
	return s.presign(ctx, receiptID, basePath)
}

// GetReceiptURLs returns fresh presigned URLs for a transaction's receipt
func (s *ReceiptService) GetReceiptURLs(ctx context.Context, userID, transactionID string) (*ReceiptURLs, error) {
	if !s.IsEnabled() {
		return nil, ErrReceiptStorageNotConfigured
	}
	transaction, err := s.transactionRepo.GetByID(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if transaction.ReceiptPath == nil {
		return nil, ErrReceiptNotFound
	}
	basePath := extractBasePath(*transaction.ReceiptPath)
	if basePath == "" {
		return nil, ErrReceiptNotFound
	}
	return s.presign(ctx, filepath.Base(basePath), basePath)
}

func (s *ReceiptService) presign(ctx context.Context, receiptID, basePath string) (*ReceiptURLs, error) {
	urls := make(map[string]string, len(receiptVariants))
	for _, variant := range receiptVariants {
		u, err := s.store.GeneratePresignedURL(ctx, variantPath(basePath, variant.name), s.urlExpiry)
		if err != nil {
			return nil, err
		}
		urls[variant.name] = u
	}
	return &ReceiptURLs{
		ID:           receiptID,
		ThumbnailURL: urls["thumb"],
		DisplayURL:   urls["display"],
		OriginalURL:  urls["original"],
		ExpiresAt:    time.Now().Add(s.urlExpiry).UTC(),
	}, nil
}

// deleteAllVariants removes every variant belonging to the receipt at path. Best effort.
func (s *ReceiptService) deleteAllVariants(ctx context.Context, path string) {
	basePath := extractBasePath(path)
	if basePath == "" {
		return
	}
	paths := make([]string, 0, len(receiptVariants))
	for _, variant := range receiptVariants {
		paths = append(paths, variantPath(basePath, variant.name))
	}
	s.deletePaths(ctx, paths)
}

func (s *ReceiptService) deletePaths(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.store.Delete(ctx, p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Failed to delete receipt object")
		}
	}
}

func variantPath(basePath, variant string) string {
	return basePath + "_" + variant + ".jpg"
}

// extractBasePath strips the variant suffix from an object path
func extractBasePath(path string) string {
	for _, variant := range receiptVariants {
		suffix := "_" + variant.name + ".jpg"
		if strings.HasSuffix(path, suffix) {
			return strings.TrimSuffix(path, suffix)
		}
	}
	return ""
}
