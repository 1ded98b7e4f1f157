// Package upload issues presigned URLs for direct uploads of advertisement
// media to S3-compatible object storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/onnwee/beaconads/internal/advertisement"
)

// Allowed MIME types for uploads
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageGIF  = "image/gif"
	MIMEImageWebP = "image/webp"
	MIMEVideoMP4  = "video/mp4"
	MIMEVideoWebM = "video/webm"
)

// Validation errors
var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileTooLarge    = errors.New("file size exceeds maximum allowed")
	ErrInvalidSize     = errors.New("file size must be positive")
	ErrInvalidAdID     = errors.New("invalid advertisement ID")
	ErrObjectNotFound  = errors.New("object not found")
)

// AllowedMIMETypes maps allowed MIME types to their file extensions
var AllowedMIMETypes = map[string]string{
	MIMEImageJPEG: ".jpg",
	MIMEImagePNG:  ".png",
	MIMEImageGIF:  ".gif",
	MIMEImageWebP: ".webp",
	MIMEVideoMP4:  ".mp4",
	MIMEVideoWebM: ".webm",
}

// MediaTypeFor returns the advertisement media type of an allowed MIME type.
func MediaTypeFor(contentType string) advertisement.MediaType {
	if strings.HasPrefix(contentType, "video/") {
		return advertisement.MediaVideo
	}
	return advertisement.MediaImage
}

// SignedURLRequest represents a request for a signed upload URL.
type SignedURLRequest struct {
	ContentType     string // MIME type of the file
	SizeBytes       int64  // Size of the file in bytes
	AdvertisementID string
}

// SignedURLResponse represents the response containing the signed URL and metadata.
type SignedURLResponse struct {
	URL       string                  `json:"url"` // Pre-signed PUT URL
	Key       string                  `json:"key"`
	MediaType advertisement.MediaType `json:"media_type"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// ObjectInfo describes an uploaded object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Service handles generating signed URLs for media uploads.
type Service struct {
	objects       objectAPI
	presignClient *s3.PresignClient
	bucketName    string
	maxSizeBytes  int64
	urlExpiry     time.Duration
	timeNow       func() time.Time
}

// ServiceConfig holds configuration for the upload service.
type ServiceConfig struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string // empty: AWS S3
	Region           string // default "auto"
	MaxSizeMB        int
	URLExpiryMinutes int // Default: 5 minutes
}

// NewService creates a new upload service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 5
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}
	if cfg.Endpoint != "" {
		// MinIO, R2 and other S3-compatible stores need path-style addressing.
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	s3Client := s3.New(opts)

	return &Service{
		objects:       s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		maxSizeBytes:  int64(cfg.MaxSizeMB) * 1024 * 1024,
		urlExpiry:     time.Duration(cfg.URLExpiryMinutes) * time.Minute,
		timeNow:       time.Now,
	}, nil
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	if _, ok := AllowedMIMETypes[contentType]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// ValidateFileSize checks if the file size is within limits.
func (s *Service) ValidateFileSize(sizeBytes int64) error {
	if sizeBytes <= 0 {
		return ErrInvalidSize
	}
	if sizeBytes > s.maxSizeBytes {
		return ErrFileTooLarge
	}
	return nil
}

// GenerateObjectKey creates a unique object key for the upload.
// Pattern: advertisements/{advertisementId}/{uuid}.{ext}
func GenerateObjectKey(contentType, adID string) (string, error) {
	ext, ok := AllowedMIMETypes[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	prefix := sanitizePathComponent(adID)
	if prefix == "" {
		return "", ErrInvalidAdID
	}
	return fmt.Sprintf("advertisements/%s/%s%s", prefix, uuid.New().String(), ext), nil
}

// sanitizePathComponent keeps only alphanumerics, hyphens and underscores.
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// GenerateSignedURL generates a pre-signed PUT URL for direct upload.
func (s *Service) GenerateSignedURL(ctx context.Context, req SignedURLRequest) (*SignedURLResponse, error) {
	if err := ValidateContentType(req.ContentType); err != nil {
		return nil, err
	}
	if err := s.ValidateFileSize(req.SizeBytes); err != nil {
		return nil, err
	}
	key, err := GenerateObjectKey(req.ContentType, req.AdvertisementID)
	if err != nil {
		return nil, err
	}

	presigned, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		ContentType:   aws.String(req.ContentType),
		ContentLength: aws.Int64(req.SizeBytes),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign request: %w", err)
	}

	return &SignedURLResponse{
		URL:       presigned.URL,
		Key:       key,
		MediaType: MediaTypeFor(req.ContentType),
		ExpiresAt: s.timeNow().Add(s.urlExpiry),
	}, nil
}

// Stat returns metadata of an uploaded object, or ErrObjectNotFound while
// the client has not finished the upload.
func (s *Service) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	info := &ObjectInfo{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		SizeBytes:   aws.ToInt64(out.ContentLength),
	}
	if out.LastModified != nil {
		info.LastModified = out.LastModified.UTC()
	}
	return info, nil
}

// BucketName returns the bucket name used by the service.
func (s *Service) BucketName() string {
	return s.bucketName
}
