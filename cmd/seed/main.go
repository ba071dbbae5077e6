package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/config"
	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/kafka"
	repo "github.com/Temutjin2k/taxi-dispatch/internal/adapter/postgres"
	georedis "github.com/Temutjin2k/taxi-dispatch/internal/adapter/redis"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/auth"
	"github.com/Temutjin2k/taxi-dispatch/migrations"
	"github.com/Temutjin2k/taxi-dispatch/pkg/postgres"
	"github.com/Temutjin2k/taxi-dispatch/pkg/redis"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to the config yaml file")
	drivers    = flag.Int("drivers", 5, "Number of online drivers to create")
	centerLat  = flag.Float64("lat", 43.238949, "Latitude drivers are scattered around")
	centerLon  = flag.Float64("lon", 76.889709, "Longitude drivers are scattered around")
	viaKafka   = flag.Bool("kafka", false, "Publish driver positions to the location topic instead of writing them directly")
)

// seed creates one admin token, a passenger and a few online drivers near the center point
func main() {
	flag.Parse()
	if flag.Lookup("mode").Value.String() == "" {
		_ = flag.Set("mode", string(types.DispatchService))
	}

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if _, err := migrations.Apply(ctx, client.Pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	printToken := func(a models.Actor) {
		token, _, err := tokens.Issue(ctx, a)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Printf("%-9s id=%-4d token=%s\n", a.Kind, a.ID, token)
	}

	printToken(models.Actor{Kind: types.ActorAdmin, ID: 1})

	passengerID, err := repo.NewPassengerRepo(client.Pool).Create(ctx, "Demo Passenger", fmt.Sprintf("+7700%07d", rand.IntN(10_000_000)))
	if err != nil {
		log.Fatalf("create passenger: %v", err)
	}
	printToken(models.Actor{Kind: types.ActorPassenger, ID: passengerID})

	driverRepo := repo.NewDriverRepo(client.Pool)
	samples := seedDrivers(ctx, driverRepo, *drivers, printToken)

	if *viaKafka {
		producer := kafka.NewLocationProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		if err := producer.Publish(ctx, samples...); err != nil {
			log.Fatalf("publish locations: %v", err)
		}
		log.Printf("published %d driver positions to %s", len(samples), cfg.Kafka.Topic)
		return
	}

	locations := repo.NewLocationRepo(client.Pool)
	for i := range samples {
		if err := locations.Append(ctx, &samples[i]); err != nil {
			log.Fatalf("store location: %v", err)
		}
	}
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			log.Fatal(err)
		}
		defer rdb.Close()
		geo := georedis.NewGeoIndex(rdb.Client, driverRepo)
		for _, s := range samples {
			if err := geo.Upsert(ctx, s); err != nil {
				log.Fatalf("index location: %v", err)
			}
		}
	}
	log.Printf("seeded %d online drivers around %.5f,%.5f", len(samples), *centerLat, *centerLon)
}

func seedDrivers(ctx context.Context, driverRepo *repo.DriverRepo, n int, printToken func(models.Actor)) []models.LocationSample {
	samples := make([]models.LocationSample, 0, n)
	for i := range n {
		d := &models.Driver{
			Name:       fmt.Sprintf("Driver %d", i+1),
			Status:     types.DriverOnline,
			IsVerified: true,
			CarModel:   "Toyota Camry",
			CarPlate:   fmt.Sprintf("%03d ABC 02", rand.IntN(1000)),
		}
		if err := driverRepo.Create(ctx, d); err != nil {
			log.Fatalf("create driver: %v", err)
		}
		printToken(models.Actor{Kind: types.ActorDriver, ID: d.ID})

		// roughly within 3 km of the center
		samples = append(samples, models.LocationSample{
			DriverID: d.ID,
			Point: models.Point{
				Lat: *centerLat + (rand.Float64()-0.5)*0.05,
				Lon: *centerLon + (rand.Float64()-0.5)*0.07,
			},
			RecordedAt: time.Now().UTC(),
		})
	}
	return samples
}
