package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auction-hub/internal/auctionerrors"
	model "auction-hub/internal/models"
	"auction-hub/internal/store/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore implements AuctionStore and BidLog over a Postgres database.
// ApplyBid commits the conditional auction update and the bid insert in a
// single transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database, runs the embedded migrations and
// returns a ready store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const auctionColumns = `auction_id, seller_id, title, description, location, image_keys,
	starting_bid, bid_increment, current_bid, bid_count, highest_bidder, status,
	start_at, end_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var a model.Auction
	var imageKeys []byte
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.Title, &a.Description, &a.Location, &imageKeys,
		&a.StartingBid, &a.BidIncrement, &a.CurrentBid, &a.BidCount, &a.HighestBidder, &a.Status,
		&a.StartAt, &a.EndAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	if len(imageKeys) > 0 {
		if err := json.Unmarshal(imageKeys, &a.ImageKeys); err != nil {
			return model.Auction{}, fmt.Errorf("decode image keys: %w", err)
		}
	}
	return a, nil
}

// CreateAuction inserts a new auction record
func (s *PostgresStore) CreateAuction(ctx context.Context, auction model.Auction) error {
	imageKeys, err := json.Marshal(auction.ImageKeys)
	if err != nil {
		return fmt.Errorf("encode image keys: %w", err)
	}
	if auction.ImageKeys == nil {
		imageKeys = []byte("[]")
	}

	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		auction.AuctionID, auction.SellerID, auction.Title, auction.Description, auction.Location, imageKeys,
		auction.StartingBid, auction.BidIncrement, auction.CurrentBid, auction.BidCount, auction.HighestBidder, auction.Status,
		auction.StartAt, auction.EndAt, auction.CreatedAt, auction.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, err)
	}
	return nil
}

// GetAuction returns the auction record for an ID
func (s *PostgresStore) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE auction_id = $1`
	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// ListAuctions returns all auction records, newest first
func (s *PostgresStore) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("list auctions: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// SetStatus updates the persisted lifecycle status of an auction
func (s *PostgresStore) SetStatus(ctx context.Context, auctionID string, status model.AuctionStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auctions SET status = $1, updated_at = $2 WHERE auction_id = $3`,
		status, at, auctionID,
	)
	if err != nil {
		return fmt.Errorf("set status for auction %s: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set status for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return nil
}

// ApplyBid commits the conditional auction update and the bid insert in one
// transaction. The WHERE clause on current_bid is the optimistic lock; zero
// rows affected with an existing auction means another bid won the race.
func (s *PostgresStore) ApplyBid(ctx context.Context, expectedCurrentBid float64, bid model.Bid) (model.Auction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions
		SET current_bid = $1, highest_bidder = $2, bid_count = bid_count + 1, updated_at = $3
		WHERE auction_id = $4 AND current_bid = $5
	`, bid.Amount, bid.BidderID, bid.PlacedAt, bid.AuctionID, expectedCurrentBid)
	if err != nil {
		return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Auction{}, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		// conditional update held
	case 0:
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM auctions WHERE auction_id = $1)`, bid.AuctionID,
		).Scan(&exists); err != nil {
			return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, err)
		}
		if !exists {
			return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, auctionerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, auctionerrors.ErrBidConflict)
	default:
		return model.Auction{}, fmt.Errorf("unexpected rows affected: %d", n)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bids (bid_id, auction_id, bidder_id, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, bid.BidID, bid.AuctionID, bid.BidderID, bid.Amount, bid.PlacedAt); err != nil {
		return model.Auction{}, fmt.Errorf("record bid %s: %w", bid.BidID, err)
	}

	auction, err := scanAuction(tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1`, bid.AuctionID))
	if err != nil {
		return model.Auction{}, fmt.Errorf("reload auction %s: %w", bid.AuctionID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, err)
	}
	return auction, nil
}

func (s *PostgresStore) queryBids(ctx context.Context, query string, arg any) ([]model.Bid, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// BidsByAuction returns all bids for an auction in acceptance order
func (s *PostgresStore) BidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	bids, err := s.queryBids(ctx, `
		SELECT bid_id, auction_id, bidder_id, amount, placed_at
		FROM bids WHERE auction_id = $1 ORDER BY placed_at
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return bids, nil
}

// BidsByBidder returns all bids a bidder has placed, across auctions
func (s *PostgresStore) BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	bids, err := s.queryBids(ctx, `
		SELECT bid_id, auction_id, bidder_id, amount, placed_at
		FROM bids WHERE bidder_id = $1 ORDER BY placed_at
	`, bidderID)
	if err != nil {
		return nil, fmt.Errorf("get bids for bidder %s: %w", bidderID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for bidder %s: %w", bidderID, auctionerrors.ErrNoBids)
	}
	return bids, nil
}

// HighestBid returns the highest bid for an auction; earliest wins a tie
func (s *PostgresStore) HighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	var b model.Bid
	err := s.db.QueryRowContext(ctx, `
		SELECT bid_id, auction_id, bidder_id, amount, placed_at
		FROM bids WHERE auction_id = $1
		ORDER BY amount DESC, placed_at ASC
		LIMIT 1
	`, auctionID).Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PlacedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, err)
	}
	return b, nil
}
