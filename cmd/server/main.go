package main

import (
	"context"
	"log"
	"os"

	"github.com/snapbite/mealscan/internal/config"
	"github.com/snapbite/mealscan/internal/db"
	"github.com/snapbite/mealscan/internal/httpapi"
	"github.com/snapbite/mealscan/internal/store/blob"
	"github.com/snapbite/mealscan/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.ScanQueue, cfg.ImageQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer publisher.Close()

	blobs, err := blob.NewS3Store(context.Background(), cfg.S3Region, cfg.S3Bucket,
		cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicBaseURL)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	r := httpapi.NewRouter(gdb, cfg, publisher, blobs)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
