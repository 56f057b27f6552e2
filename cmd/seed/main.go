// Command seed lists players on the exchange by placing the market maker's
// IPO ask in each book. Input is a CSV of player_id,ipo_price[,float]; when
// the float column is omitted a tiered float is derived from the IPO price
// so that expensive players start scarcer.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/athletix/exchange/internal/adapter/pg"
	"github.com/athletix/exchange/internal/ledger"
	"github.com/athletix/exchange/internal/market"
)

const makerID = "00000000-0000-0000-0000-000000000000"

func tieredFloat(ipoPrice decimal.Decimal) int64 {
	switch {
	case ipoPrice.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return 2000
	case ipoPrice.GreaterThanOrEqual(decimal.NewFromInt(20)):
		return 5000
	default:
		return 10000
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		pgURL = flag.String("postgres", os.Getenv("POSTGRES_URL"), "postgres connection string")
		file  = flag.String("players", "players.csv", "CSV of player_id,ipo_price[,float]")
	)
	flag.Parse()

	ctx := context.Background()
	repo, err := pg.NewRepo(ctx, *pgURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	mkt := market.New(repo, ledger.New(repo, makerID), nil, makerID)
	if err := mkt.LoadOpenOrders(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to rebuild order books")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("failed to open players file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	listed, skipped := 0, 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read players file")
		}
		if len(rec) < 2 {
			log.Warn().Strs("record", rec).Msg("skipping malformed record")
			continue
		}

		playerID := rec[0]
		price, err := decimal.NewFromString(rec[1])
		if err != nil || !price.IsPositive() {
			log.Warn().Str("player_id", playerID).Str("price", rec[1]).Msg("skipping invalid ipo price")
			continue
		}
		float := tieredFloat(price)
		if len(rec) >= 3 {
			if n, err := strconv.ParseInt(rec[2], 10, 64); err == nil && n > 0 {
				float = n
			}
		}

		orderID, err := mkt.ListInstrument(ctx, playerID, price, float)
		if err != nil {
			log.Fatal().Err(err).Str("player_id", playerID).Msg("listing failed")
		}
		if orderID == 0 {
			skipped++
			continue
		}
		listed++
	}

	log.Info().Int("listed", listed).Int("already_listed", skipped).Msg("seed complete")
}
