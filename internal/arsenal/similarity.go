package arsenal

import (
	"context"
	"fmt"
	"strings"

	"quadforge/internal/embedding"
	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

const defaultSimilarLimit = 3

// SimilarParts returns up to k stored parts ranked by similarity to the
// query text. Three rungs, best available wins: a vec0 KNN query inside
// SQLite, in-process cosine ranking over stored embedding blobs, and
// keyword matching when no embedding engine is attached or every better
// rung comes back empty.
func (s *Store) SimilarParts(ctx context.Context, text string, k int) ([]*parts.Part, error) {
	timer := logging.StartTimer(logging.CategoryArsenal, "SimilarParts")
	defer timer.Stop()

	if k <= 0 {
		k = defaultSimilarLimit
	}
	if s.embedder == nil {
		return s.likeParts(ctx, text, k)
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		logging.ArsenalWarn("Query embedding failed, using keyword match: %v", err)
		return s.likeParts(ctx, text, k)
	}

	if s.vectorExt {
		found, err := s.knnParts(ctx, queryVec, k)
		if err != nil {
			logging.ArsenalWarn("vec0 query failed, ranking in process: %v", err)
		} else if len(found) > 0 {
			return found, nil
		}
	}

	found, err := s.cosineParts(ctx, queryVec, k)
	if err != nil {
		logging.ArsenalWarn("Cosine ranking failed, using keyword match: %v", err)
	} else if len(found) > 0 {
		return found, nil
	}
	return s.likeParts(ctx, text, k)
}

// knnParts runs the KNN inside SQLite via the vec0 index.
func (s *Store) knnParts(ctx context.Context, queryVec []float32, k int) ([]*parts.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid FROM parts_vec WHERE embedding MATCH ? AND k = ? ORDER BY distance",
		embedding.VectorBlob(queryVec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rowids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		rowids = append(rowids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.partsByRowid(ctx, rowids)
}

// cosineParts loads every stored embedding and ranks in process. Fine at
// arsenal scale; the vec0 index exists for when it is not.
func (s *Store) cosineParts(ctx context.Context, queryVec []float32, k int) ([]*parts.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid, embedding FROM parts WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rowids []int64
	var corpus [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := embedding.VectorFromBlob(blob)
		if err != nil {
			logging.ArsenalDebug("Skipping undecodable embedding on rowid %d: %v", id, err)
			continue
		}
		rowids = append(rowids, id)
		corpus = append(corpus, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(corpus) == 0 {
		return nil, nil
	}

	ranked := make([]int64, 0, k)
	for _, m := range embedding.TopK(queryVec, corpus, k) {
		ranked = append(ranked, rowids[m.Index])
	}
	return s.partsByRowid(ctx, ranked)
}

// likeParts is the bottom rung: token-wise LIKE over names and
// descriptions, newest rows first.
func (s *Store) likeParts(ctx context.Context, text string, k int) ([]*parts.Part, error) {
	terms := strings.Fields(strings.TrimSpace(text))
	if len(terms) == 0 {
		return nil, nil
	}
	if len(terms) > 6 {
		terms = terms[:6]
	}

	conds := make([]string, 0, len(terms))
	args := make([]interface{}, 0, 2*len(terms)+1)
	for _, term := range terms {
		conds = append(conds, "(product_name LIKE ? OR description LIKE ?)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, k)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+partColumns+" FROM parts WHERE "+strings.Join(conds, " OR ")+
			" ORDER BY updated_at DESC LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("keyword part search failed: %w", err)
	}
	defer rows.Close()
	return collectParts(rows)
}

// partsByRowid loads full parts preserving the ranked order. Callers
// hold the read lock.
func (s *Store) partsByRowid(ctx context.Context, rowids []int64) ([]*parts.Part, error) {
	out := make([]*parts.Part, 0, len(rowids))
	for _, id := range rowids {
		row := s.db.QueryRowContext(ctx,
			"SELECT "+partColumns+" FROM parts WHERE rowid = ?", id)
		p, err := scanPart(row)
		if err != nil {
			logging.ArsenalDebug("Ranked rowid %d did not load: %v", id, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// indexVector mirrors a freshly written embedding into the vec0 index.
func (s *Store) indexVector(ctx context.Context, productName string, emb []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rowid int64
	err := s.db.QueryRowContext(ctx,
		"SELECT rowid FROM parts WHERE product_name = ?", productName).Scan(&rowid)
	if err != nil {
		logging.ArsenalDebug("vec index rowid lookup failed for %q: %v", productName, err)
		return
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM parts_vec WHERE rowid = ?", rowid); err != nil {
		logging.ArsenalDebug("vec index delete failed for %q: %v", productName, err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO parts_vec(rowid, embedding) VALUES (?, ?)", rowid, emb); err != nil {
		logging.ArsenalWarn("vec index insert failed for %q: %v", productName, err)
	}
}
