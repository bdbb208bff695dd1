package main

import (
	"fmt"
	"math/rand"
	"strings"

	"instagram-automation/models"
	"instagram-automation/services"

	"github.com/google/uuid"
)

var (
	accountTypes = []string{"business", "creator", "personal"}
	niches       = []string{
		"fitness", "food", "travel", "fashion", "technology", "lifestyle",
		"beauty", "sports", "music", "art", "photography", "education",
		"health", "business", "entertainment", "nature", "cars", "pets",
		"gaming", "books", "movies", "cooking", "yoga", "motivation",
	}
	usernamePrefixes = []string{"demo", "sample", "mock", "dev", "staging", "qa", "load", "perf", "bulk", "sim", "auto"}
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// generator builds registration requests for simulation accounts. Every
// request carries the simulation prefix on all three identifiers, so the
// accounts never reach the platform.
type generator struct {
	rng *rand.Rand
}

func newGenerator(rng *rand.Rand) *generator {
	return &generator{rng: rng}
}

func (g *generator) pick(values []string) string {
	return values[g.rng.Intn(len(values))]
}

func (g *generator) username(index int) string {
	var suffix strings.Builder
	for range 6 {
		suffix.WriteByte(suffixAlphabet[g.rng.Intn(len(suffixAlphabet))])
	}
	return fmt.Sprintf("%s_%s_%d_%s", models.SimulationPrefix, g.pick(usernamePrefixes), index, suffix.String())
}

func (g *generator) instagramID() string {
	return fmt.Sprintf("%s%d", models.SimulationPrefix, 100000000000000+g.rng.Int63n(900000000000000))
}

func (g *generator) accessToken() string {
	return fmt.Sprintf("%s_token_%s", models.SimulationPrefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

func (g *generator) account(index int) services.RegisterAccountRequest {
	return services.RegisterAccountRequest{
		Username:    g.username(index),
		InstagramID: g.instagramID(),
		AccessToken: g.accessToken(),
		AccountType: g.pick(accountTypes),
		Niche:       g.pick(niches),
	}
}

// batch returns count requests numbered from 1.
func (g *generator) batch(count int) []services.RegisterAccountRequest {
	out := make([]services.RegisterAccountRequest, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, g.account(i))
	}
	return out
}
