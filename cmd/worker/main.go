package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/snapbite/mealscan/internal/ai"
	"github.com/snapbite/mealscan/internal/config"
	"github.com/snapbite/mealscan/internal/db"
	"github.com/snapbite/mealscan/internal/scan"
	"github.com/snapbite/mealscan/internal/store/blob"
	"github.com/snapbite/mealscan/internal/store/rabbitmq"
	"github.com/snapbite/mealscan/internal/store/redisstore"
	"github.com/snapbite/mealscan/internal/transcode"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := scan.NewRepo(gdb)

	// Provider registry (route by AI_PROVIDER)
	gemini := ai.NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiImageModel)
	reg := ai.NewRegistry()
	reg.Register("gemini", func(ctx context.Context, model string) (ai.Detector, error) {
		_ = ctx
		_ = model
		return gemini, nil
	})

	detector, err := reg.Get(context.Background(), cfg.AIProvider, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		time.Duration(cfg.DetectCacheTTLMinutes)*time.Minute)
	defer cache.Close()

	adapter := ai.NewAdapter(detector, gemini, cache)

	blobs, err := blob.NewS3Store(context.Background(), cfg.S3Region, cfg.S3Bucket,
		cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicBaseURL)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.ScanQueue, cfg.ImageQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer publisher.Close()

	resolver := scan.NewResolver(repo, publisher)
	transcoder := transcode.ForName(cfg.ThumbnailFormat, cfg.ThumbnailMaxDim)

	dispatcher := scan.NewDispatcher(
		repo,
		scan.NewProcessor(repo, adapter, resolver, blobs),
		scan.NewImageProcessor(repo, adapter, transcoder, blobs),
	)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	concurrency := workerConcurrency()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queues=%s,%s concurrency=%d", cfg.ScanQueue, cfg.ImageQueue, concurrency)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		consume(ctx, conn, cfg.ScanQueue, concurrency, dispatcher.HandleScanJob)
	}()
	go func() {
		defer wg.Done()
		consume(ctx, conn, cfg.ImageQueue, concurrency, dispatcher.HandleImageJob)
	}()
	wg.Wait()
	log.Printf("worker shut down")
}

// consume runs a bounded worker pool over one queue. Handler errors nack the
// delivery to the DLQ; claim races ack as no-ops inside the handler.
func consume(ctx context.Context, conn *amqp.Connection, queue string, concurrency int, handle func(ctx context.Context, jobID string) error) {
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel queue=%s: %v", queue, err)
	}
	defer ch.Close()

	// queue topology (incl. retry/DLQ) is declared by the publisher at startup

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos queue=%s: %v", queue, err)
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume queue=%s: %v", queue, err)
	}

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("queue=%s worker=%d bad message: %v", queue, workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handle(ctx, m.JobID); err != nil {
					log.Printf("queue=%s worker=%d job %s failed cost=%s err=%v", queue, workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("queue=%s worker=%d ack failed job=%s err=%v", queue, workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("queue=%s consumer shutting down", queue)
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("queue=%s delivery channel closed", queue)
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
