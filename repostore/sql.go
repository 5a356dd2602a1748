package repostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RepoBlock struct {
	Did     string `gorm:"primaryKey"`
	Cid     []byte `gorm:"primaryKey"`
	RepoRev string `gorm:"index"`
	Size    int
	Content []byte
}

type RepoRoot struct {
	Did       string `gorm:"primaryKey"`
	Cid       []byte
	Rev       string
	IndexedAt time.Time
}

// SQLStore keeps blocks and the repo root in a SQL database (sqlite or postgres) via gorm.
type SQLStore struct {
	db  *gorm.DB
	did string
	log *slog.Logger
}

var _ RepoStorage = (*SQLStore)(nil)

func NewSQLStore(db *gorm.DB, did string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&RepoBlock{}, &RepoRoot{}); err != nil {
		return nil, fmt.Errorf("migrating repo tables: %w", err)
	}
	return &SQLStore{
		db:  db,
		did: did,
		log: logger.With("system", "repostore", "store", "sql"),
	}, nil
}

func (s *SQLStore) GetBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	var blk RepoBlock
	err := s.db.WithContext(ctx).Where("did = ? AND cid = ?", s.did, c.Bytes()).Take(&blk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	if err != nil {
		return nil, err
	}
	return blk.Content, nil
}

func (s *SQLStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&RepoBlock{}).Where("did = ? AND cid = ?", s.did, c.Bytes()).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error {
	row := RepoBlock{
		Did:     s.did,
		Cid:     c.Bytes(),
		RepoRev: rev,
		Size:    len(data),
		Content: data,
	}
	// blocks are content-addressed, so an existing row is already correct
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *SQLStore) PutBlocks(ctx context.Context, blks []blocks.Block, rev string) error {
	if len(blks) == 0 {
		return nil
	}
	rows := make([]RepoBlock, 0, len(blks))
	for _, blk := range blks {
		rows = append(rows, RepoBlock{
			Did:     s.did,
			Cid:     blk.Cid().Bytes(),
			RepoRev: rev,
			Size:    len(blk.RawData()),
			Content: blk.RawData(),
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return err
	}
	s.log.Debug("wrote blocks", "did", s.did, "count", len(rows), "rev", rev)
	return nil
}

func (s *SQLStore) GetRootDetailed(ctx context.Context) (*RootDetailed, error) {
	var root RepoRoot
	err := s.db.WithContext(ctx).Where("did = ?", s.did).Take(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRootNotFound
	}
	if err != nil {
		return nil, err
	}
	c, err := cid.Cast(root.Cid)
	if err != nil {
		return nil, fmt.Errorf("repo root for %s: %w", s.did, err)
	}
	return &RootDetailed{CID: c, Rev: root.Rev}, nil
}

func (s *SQLStore) UpdateRoot(ctx context.Context, root cid.Cid, rev string) error {
	row := RepoRoot{
		Did:       s.did,
		Cid:       root.Bytes(),
		Rev:       rev,
		IndexedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "did"}},
		DoUpdates: clause.AssignmentColumns([]string{"cid", "rev", "indexed_at"}),
	}).Create(&row).Error
}

// The database handle is owned by the caller.
func (s *SQLStore) Close() error {
	return nil
}
