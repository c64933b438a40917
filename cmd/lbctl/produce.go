package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/sgracers-leaderboard/internal/domain"
)

var syntheticPlatforms = []string{"epic", "xbox", "psn"}

// player is a synthetic racer with a base lap time per board.
type player struct {
	id       string
	platform string
	skill    float64
}

func newPlayers(f *gofakeit.Faker, n int) []player {
	players := make([]player, n)
	for i := range players {
		players[i] = player{
			id:       uuid.NewString(),
			platform: f.RandomString(syntheticPlatforms),
			skill:    f.Float64Range(0.8, 1.6),
		}
	}
	return players
}

// newSubmission picks a random player and board. Better players post faster
// times.
func newSubmission(f *gofakeit.Faker, players []player) domain.Submission {
	p := players[f.IntRange(0, len(players)-1)]
	m := domain.KnownMaps[f.IntRange(0, len(domain.KnownMaps)-1)]
	d := domain.KnownDifficulties[f.IntRange(0, len(domain.KnownDifficulties)-1)]
	base := float64(f.IntRange(45_000, 90_000))
	return domain.Submission{
		PlatformID: p.id,
		Platform:   p.platform,
		Map:        string(m),
		Difficulty: string(d),
		TimeMs:     int64(base * p.skill),
	}
}

func produceCommand() *cli.Command {
	return &cli.Command{
		Name:  "produce",
		Usage: "publish synthetic submissions to Kafka",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "brokers", Value: "localhost:9094", Usage: "comma-separated broker list"},
			&cli.StringFlag{Name: "topic", Value: "leaderboard-submissions"},
			&cli.IntFlag{Name: "players", Value: 100},
			&cli.IntFlag{Name: "rate", Value: 20, Usage: "submissions per second"},
			&cli.IntFlag{Name: "count", Usage: "stop after this many submissions (0 = no limit)"},
			&cli.DurationFlag{Name: "duration", Usage: "stop after this long (0 = no limit)"},
			&cli.Int64Flag{Name: "seed", Usage: "random seed (0 = random)"},
		},
		Action: produce,
	}
}

func produce(c *cli.Context) error {
	if c.Int("players") <= 0 || c.Int("rate") <= 0 {
		return fmt.Errorf("players and rate must be positive")
	}
	out := c.App.Writer
	brokers := strings.Split(c.String("brokers"), ",")
	topic := c.String("topic")

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("creating producer: %w", err)
	}

	var sent, failed int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&sent, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&failed, 1)
			fmt.Fprintf(os.Stderr, "producer error: %v\n", err)
		}
	}()

	finish := func(reason string) error {
		producer.AsyncClose()
		wg.Wait()
		fmt.Fprintf(out, "%s. sent: %d, errors: %d\n", reason, atomic.LoadInt64(&sent), atomic.LoadInt64(&failed))
		return nil
	}

	faker := gofakeit.New(uint64(c.Int64("seed")))
	players := newPlayers(faker, c.Int("players"))
	fmt.Fprintf(out, "producing to %s on %s for %d players at %d/s\n", topic, c.String("brokers"), len(players), c.Int("rate"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var deadline <-chan time.Time
	if d := c.Duration("duration"); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(time.Second / time.Duration(c.Int("rate")))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	limit := int64(c.Int("count"))
	var produced int64
	for {
		select {
		case <-sigChan:
			return finish("interrupted")
		case <-c.Context.Done():
			return finish("cancelled")
		case <-deadline:
			return finish("duration reached")

		case <-ticker.C:
			sub := newSubmission(faker, players)
			data, err := json.Marshal(sub)
			if err != nil {
				return fmt.Errorf("encoding submission: %w", err)
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: topic,
				Key:   sarama.StringEncoder(sub.PlatformID),
				Value: sarama.ByteEncoder(data),
			}
			produced++
			if limit > 0 && produced >= limit {
				return finish("count reached")
			}

		case <-statsTicker.C:
			fmt.Fprintf(out, "[%s] produced: %d | sent: %d | errors: %d\n",
				time.Now().Format("15:04:05"), produced, atomic.LoadInt64(&sent), atomic.LoadInt64(&failed))
		}
	}
}
