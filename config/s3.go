package config

import "sync"

var (
	s3Once   sync.Once
	s3Config *S3Config
)

type S3Config struct {
	BucketName string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		loadEnv()
		s3Config = loadS3Config()
	})
	return s3Config
}

func loadS3Config() *S3Config {
	return &S3Config{
		BucketName: envString("AWS_S3_BUCKET_NAME", ""),
		Region:     envString("AWS_REGION", "us-east-1"),
		Endpoint:   envString("AWS_ENDPOINT", ""),
		AccessKey:  envString("AWS_ACCESS_KEY", ""),
		SecretKey:  envString("AWS_SECRET_KEY", ""),
	}
}
