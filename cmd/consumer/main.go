package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/taxi-dispatch/internal/geo"
	"github.com/example/taxi-dispatch/internal/models"
)

// The consumer mirrors driver location updates from Kafka into Redis
// so operational dashboards can read live positions without touching
// the durable store.

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	mirrorUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_mirror_updates_total",
		Help: "Total successful mirror updates",
	})
	mirrorErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_mirror_errors_total",
		Help: "Total mirror update errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, mirrorUpdates, mirrorErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	brokers := []string{"localhost:9092"}
	if brokersEnv != "" {
		brokers = brokers[:0]
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	}

	topic := getenv("KAFKA_TOPIC", "driver-locations")
	group := getenv("KAFKA_GROUP", "taxi-dispatch-consumer")
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	geoKey := getenv("REDIS_GEO_KEY", "drivers_geo")

	mirror := geo.NewRedisMirror(redisAddr, os.Getenv("REDIS_PASSWORD"), geoKey)
	defer mirror.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := mirror.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var loc models.DriverLocation
		if err := json.Unmarshal(m.Value, &loc); err != nil {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}

		if err := updateMirrorWithRetry(ctx, mirror, &loc, 3, 200*time.Millisecond); err != nil {
			mirrorErrors.Inc()
			log.Printf("mirror update failed for driver=%s: %v", loc.DriverID, err)
			continue
		}
		mirrorUpdates.Inc()
	}
}

// MirrorUpdater is the subset of mirror operations the loop needs;
// tests substitute fakes.
type MirrorUpdater interface {
	Upsert(ctx context.Context, loc *models.DriverLocation) error
}

// updateMirrorWithRetry retries transient mirror failures with
// exponential backoff.
func updateMirrorWithRetry(ctx context.Context, m MirrorUpdater, loc *models.DriverLocation, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = m.Upsert(ctx, loc); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
