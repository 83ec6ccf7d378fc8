package config

import "sync"

var (
	minioOnce   sync.Once
	minioConfig *MinioConfig
)

type MinioConfig struct {
	AccessKey  string
	SecretKey  string
	Endpoint   string
	UseSSL     bool
	Region     string
	BucketName string
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		loadEnv()
		minioConfig = loadMinioConfig()
	})
	return minioConfig
}

func loadMinioConfig() *MinioConfig {
	return &MinioConfig{
		AccessKey:  envString("MINIO_ACCESS_KEY", ""),
		SecretKey:  envString("MINIO_SECRET_KEY", ""),
		Endpoint:   envString("MINIO_ENDPOINT", "localhost:9000"),
		UseSSL:     envBool("MINIO_USE_SSL", false),
		Region:     envString("MINIO_REGION", ""),
		BucketName: envString("MINIO_BUCKET_NAME", "study-materials"),
	}
}
