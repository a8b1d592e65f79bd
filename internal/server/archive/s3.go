// Package archive writes an audit record for every release to object
// storage. The record carries metadata only; the disclosed secret itself
// is never archived.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "github.com/pyoneerc/deadhand/internal/server/config"
	"github.com/pyoneerc/deadhand/internal/server/models"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// releaseRecord is the stored audit document.
type releaseRecord struct {
	VaultID          string `json:"vault_id"`
	OwnerEmail       string `json:"owner_email"`
	BeneficiaryEmail string `json:"beneficiary_email"`
	ReleasedAt       string `json:"released_at"`
}

type S3Archiver struct {
	config *sc.Config
}

func NewS3Archiver(config *sc.Config) *S3Archiver {
	return &S3Archiver{config: config}
}

func (a *S3Archiver) getClient() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(a.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.config.S3RootUser,     // MINIO_ROOT_USER
			a.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.config.S3BaseEndpoint)
	})

	return client, nil
}

func storageKey(d *models.Disclosure) string {
	t := d.ReleasedAt
	return fmt.Sprintf("releases/%d/%02d/%02d/%s.json", t.Year(), t.Month(), t.Day(), d.VaultID)
}

// ArchiveRelease uploads the audit record for a disclosure.
func (a *S3Archiver) ArchiveRelease(ctx context.Context, d *models.Disclosure) error {
	client, err := a.getClient()
	if err != nil {
		return err
	}

	record := releaseRecord{
		VaultID:          d.VaultID,
		OwnerEmail:       d.OwnerEmail,
		BeneficiaryEmail: d.BeneficiaryEmail,
		ReleasedAt:       d.ReleasedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	bucket := a.config.S3Bucket
	key := storageKey(d)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("error archiving release: %v", err)
	}

	return nil
}
