package arsenal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quadforge/internal/embedding"
	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

const defaultSearchLimit = 25

// partColumns is every column except the embedding blob, which only the
// similarity path reads.
const partColumns = `id, category, product_name,
	COALESCE(url, ''), COALESCE(image_url, ''), COALESCE(price, 0),
	COALESCE(currency, ''), COALESCE(vendor, ''), COALESCE(description, ''),
	COALESCE(specs_json, ''), COALESCE(provenance, ''),
	COALESCE(created_at, ''), COALESCE(updated_at, '')`

const upsertPartSQL = `INSERT INTO parts
	(id, category, product_name, url, image_url, price, currency, vendor,
	 description, specs_json, provenance, embedding, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(product_name) DO UPDATE SET
		category    = excluded.category,
		url         = excluded.url,
		image_url   = excluded.image_url,
		price       = excluded.price,
		currency    = excluded.currency,
		vendor      = excluded.vendor,
		description = excluded.description,
		specs_json  = excluded.specs_json,
		provenance  = excluded.provenance,
		embedding   = excluded.embedding,
		updated_at  = excluded.updated_at`

// UpsertPart writes a part keyed by product name. A second sourcing run
// that finds the same listing refreshes the stored row instead of
// duplicating it. When an embedding engine is attached the part text is
// embedded inline; an embedding failure downgrades the row to keyword
// search rather than failing the write.
func (s *Store) UpsertPart(ctx context.Context, p *parts.Part) error {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("part needs a product name")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var specsJSON []byte
	if len(p.Specs) > 0 {
		var err error
		specsJSON, err = json.Marshal(p.Specs)
		if err != nil {
			return fmt.Errorf("failed to encode specs for %q: %w", p.Name, err)
		}
	}

	var emb []byte
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, embedText(p))
		if err != nil {
			logging.ArsenalWarn("Embedding failed for %q, row stays keyword-only: %v", p.Name, err)
		} else {
			emb = embedding.VectorBlob(vec)
		}
	}

	_, err := s.execWrite(ctx, upsertPartSQL,
		p.ID, string(p.Category), p.Name, p.URL, p.ImageURL, p.Price,
		p.Currency, p.Vendor, p.Description, string(specsJSON),
		string(p.Source), emb, fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert part %q: %w", p.Name, err)
	}
	if s.vectorExt && emb != nil {
		s.indexVector(ctx, p.Name, emb)
	}
	logging.ArsenalDebug("Upserted part: name=%q category=%s", p.Name, p.Category)
	return nil
}

// PartByName returns the part stored under the exact product name, or
// (nil, nil) when no row matches.
func (s *Store) PartByName(ctx context.Context, name string) (*parts.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		"SELECT "+partColumns+" FROM parts WHERE product_name = ?", name)
	p, err := scanPart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load part %q: %w", name, err)
	}
	return p, nil
}

// PartsByCategory lists stored parts of one category, newest first.
func (s *Store) PartsByCategory(ctx context.Context, category parts.Category) ([]*parts.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+partColumns+" FROM parts WHERE category = ? ORDER BY updated_at DESC",
		string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s parts: %w", category, err)
	}
	defer rows.Close()
	return collectParts(rows)
}

// SearchParts matches term against product names and descriptions.
func (s *Store) SearchParts(ctx context.Context, term string, limit int) ([]*parts.Part, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	pattern := "%" + strings.TrimSpace(term) + "%"

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+partColumns+` FROM parts
		WHERE product_name LIKE ? OR description LIKE ?
		ORDER BY updated_at DESC LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("part search failed for %q: %w", term, err)
	}
	defer rows.Close()
	return collectParts(rows)
}

// CountParts returns the number of stored parts.
func (s *Store) CountParts(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM parts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count parts: %w", err)
	}
	return n, nil
}

// embedText is the text a part is indexed under. Category and name carry
// most of the signal; the description catches spec-table phrasing.
func embedText(p *parts.Part) string {
	return strings.TrimSpace(string(p.Category) + " " + p.Name + " " + p.Description)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPart(row rowScanner) (*parts.Part, error) {
	var p parts.Part
	var category, specsJSON, provenance, createdAt, updatedAt string
	err := row.Scan(&p.ID, &category, &p.Name, &p.URL, &p.ImageURL, &p.Price,
		&p.Currency, &p.Vendor, &p.Description, &specsJSON, &provenance,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Category = parts.Category(category)
	p.Source = parts.Provenance(provenance)
	if specsJSON != "" {
		if err := json.Unmarshal([]byte(specsJSON), &p.Specs); err != nil {
			logging.ArsenalDebug("Specs decode failed for %q: %v", p.Name, err)
			p.Specs = nil
		}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func collectParts(rows *sql.Rows) ([]*parts.Part, error) {
	var out []*parts.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
