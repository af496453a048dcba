package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"todobot/internal/domain"
)

const itemColumns = `id, kind, guild_id, owner_id, assignees, title, description,
	due_at, ends_at, status, fired, custom, created_at, completed_at`

// customRow is the JSON shape of one custom reminder in the custom column.
type customRow struct {
	FireAt    int64  `json:"fire_at"` // unix millis UTC
	Fired     bool   `json:"fired"`
	CreatedBy string `json:"created_by,omitempty"`
}

// CreateItem inserts a new item, assigning a fresh id when none is set, and
// returns the stored row.
func (s *Store) CreateItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	if it.Status == "" {
		it.Status = domain.StatusActive
	}
	assignees, fired, custom, err := encodeLists(it)
	if err != nil {
		return domain.Item{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items(`+itemColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, string(it.Kind), it.GuildID, it.OwnerID, assignees, it.Title, it.Description,
		it.DueAt.UnixMilli(), nullMillis(it.EndsAt), string(it.Status), fired, custom,
		it.CreatedAt.UnixMilli(), nullMillis(it.CompletedAt),
	)
	if err != nil {
		return domain.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return it, nil
}

// GetItem fetches one item by full id.
func (s *Store) GetItem(ctx context.Context, id string) (domain.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// FindItem resolves an id or short-id prefix to a single item. A prefix
// matching several items yields ErrAmbiguousID.
func (s *Store) FindItem(ctx context.Context, idOrPrefix string) (domain.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return domain.Item{}, err
	}
	defer rows.Close()

	var found []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return domain.Item{}, err
		}
		found = append(found, it)
	}
	if err := rows.Err(); err != nil {
		return domain.Item{}, err
	}
	switch len(found) {
	case 0:
		return domain.Item{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return domain.Item{}, ErrAmbiguousID
	}
}

// UpdateItem rewrites the full row. Used by the edit/complete/assign paths;
// the reminder engine never goes through here.
func (s *Store) UpdateItem(ctx context.Context, it domain.Item) error {
	assignees, fired, custom, err := encodeLists(it)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET kind=?, guild_id=?, owner_id=?, assignees=?, title=?,
		 description=?, due_at=?, ends_at=?, status=?, fired=?, custom=?, completed_at=?
		 WHERE id=?`,
		string(it.Kind), it.GuildID, it.OwnerID, assignees, it.Title,
		it.Description, it.DueAt.UnixMilli(), nullMillis(it.EndsAt), string(it.Status),
		fired, custom, nullMillis(it.CompletedAt), it.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an item row. Deleting an absent row is not an error: the
// auto-delete pass may race a user's explicit removal.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

// ListActive returns every active item, soonest deadline first.
func (s *Store) ListActive(ctx context.Context) ([]domain.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE status = ? ORDER BY due_at`,
		string(domain.StatusActive))
}

// ListGuild returns a guild's items of one kind. Completed items are
// included only when withCompleted is set.
func (s *Store) ListGuild(ctx context.Context, guildID string, kind domain.Kind, withCompleted bool) ([]domain.Item, error) {
	if withCompleted {
		return s.queryItems(ctx,
			`SELECT `+itemColumns+` FROM items WHERE guild_id = ? AND kind = ? ORDER BY due_at`,
			guildID, string(kind))
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE guild_id = ? AND kind = ? AND status = ? ORDER BY due_at`,
		guildID, string(kind), string(domain.StatusActive))
}

// ListOwner returns a user's guildless items of one kind.
func (s *Store) ListOwner(ctx context.Context, ownerID string, kind domain.Kind) ([]domain.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE guild_id = '' AND owner_id = ? AND kind = ? AND status = ? ORDER BY due_at`,
		ownerID, string(kind), string(domain.StatusActive))
}

// ListByDeadline returns items, completed included, whose deadline falls in
// [from, to).
func (s *Store) ListByDeadline(ctx context.Context, from, to time.Time) ([]domain.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE due_at >= ? AND due_at < ? ORDER BY due_at`,
		from.UnixMilli(), to.UnixMilli())
}

// ConditionalMarkFired flips one reminder's fired flag and reports whether
// this caller performed the transition. The update is guarded by the column's
// text exactly as read, so among concurrent callers exactly one wins and the
// guard stays byte-accurate even for rows with legacy tag spellings.
func (s *Store) ConditionalMarkFired(ctx context.Context, itemID string, ref domain.ReminderRef) (bool, error) {
	var firedRaw, customRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fired, custom FROM items WHERE id = ?`, itemID).Scan(&firedRaw, &customRaw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if ref.IsCustom() {
		var crs []customRow
		if err := json.Unmarshal([]byte(customRaw), &crs); err != nil {
			return false, fmt.Errorf("item %s: custom: %w", itemID, err)
		}
		if ref.Custom < 0 || ref.Custom >= len(crs) || crs[ref.Custom].Fired {
			return false, nil
		}
		crs[ref.Custom].Fired = true
		newJSON, err := json.Marshal(crs)
		if err != nil {
			return false, err
		}
		return s.casColumn(ctx, itemID, "custom", customRaw, string(newJSON))
	}

	var tags []string
	if err := json.Unmarshal([]byte(firedRaw), &tags); err != nil {
		return false, fmt.Errorf("item %s: fired: %w", itemID, err)
	}
	for _, tag := range normalizeTags(tags) {
		if tag == ref.Std {
			return false, nil
		}
	}
	newJSON, err := json.Marshal(append(tags, string(ref.Std)))
	if err != nil {
		return false, err
	}
	return s.casColumn(ctx, itemID, "fired", firedRaw, string(newJSON))
}

func (s *Store) casColumn(ctx context.Context, id, column, oldVal, newVal string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET `+column+` = ? WHERE id = ? AND `+column+` = ?`,
		newVal, id, oldVal)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		it                       domain.Item
		kind, status             string
		assignees, fired, custom string
		dueMS, createdMS         int64
		endsMS, completedMS      sql.NullInt64
	)
	err := row.Scan(&it.ID, &kind, &it.GuildID, &it.OwnerID, &assignees, &it.Title,
		&it.Description, &dueMS, &endsMS, &status, &fired, &custom, &createdMS, &completedMS)
	if err == sql.ErrNoRows {
		return domain.Item{}, ErrNotFound
	}
	if err != nil {
		return domain.Item{}, err
	}

	it.Kind = domain.Kind(kind)
	it.Status = domain.Status(status)
	it.DueAt = time.UnixMilli(dueMS).UTC()
	it.CreatedAt = time.UnixMilli(createdMS).UTC()
	if endsMS.Valid {
		t := time.UnixMilli(endsMS.Int64).UTC()
		it.EndsAt = &t
	}
	if completedMS.Valid {
		t := time.UnixMilli(completedMS.Int64).UTC()
		it.CompletedAt = &t
	}

	if err := json.Unmarshal([]byte(assignees), &it.Assignees); err != nil {
		return domain.Item{}, fmt.Errorf("item %s: assignees: %w", it.ID, err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(fired), &tags); err != nil {
		return domain.Item{}, fmt.Errorf("item %s: fired: %w", it.ID, err)
	}
	it.Fired = normalizeTags(tags)
	var crs []customRow
	if err := json.Unmarshal([]byte(custom), &crs); err != nil {
		return domain.Item{}, fmt.Errorf("item %s: custom: %w", it.ID, err)
	}
	for _, cr := range crs {
		it.Custom = append(it.Custom, domain.CustomReminder{
			FireAt:    time.UnixMilli(cr.FireAt).UTC(),
			Fired:     cr.Fired,
			CreatedBy: cr.CreatedBy,
		})
	}
	return it, nil
}

// normalizeTags maps rows written by earlier schema generations, which named
// the pre-deadline tags by day counts, onto the current tag set. Unknown
// tags are dropped rather than resurrected as never-fired reminders.
func normalizeTags(raw []string) []domain.StandardTag {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.StandardTag, 0, len(raw))
	for _, t := range raw {
		switch t {
		case "3d":
			t = string(domain.Tag72h)
		case "1d":
			t = string(domain.Tag24h)
		}
		switch tag := domain.StandardTag(t); tag {
		case domain.Tag72h, domain.Tag24h, domain.Tag5h, domain.TagDue:
			out = append(out, tag)
		}
	}
	return out
}

func encodeLists(it domain.Item) (assignees, fired, custom string, err error) {
	a := it.Assignees
	if a == nil {
		a = []string{}
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", "", err
	}
	f := it.Fired
	if f == nil {
		f = []domain.StandardTag{}
	}
	fb, err := json.Marshal(f)
	if err != nil {
		return "", "", "", err
	}
	cs, err := encodeCustom(it.Custom)
	if err != nil {
		return "", "", "", err
	}
	return string(ab), string(fb), cs, nil
}

func encodeCustom(crs []domain.CustomReminder) (string, error) {
	rows := make([]customRow, 0, len(crs))
	for _, cr := range crs {
		rows = append(rows, customRow{
			FireAt:    cr.FireAt.UnixMilli(),
			Fired:     cr.Fired,
			CreatedBy: cr.CreatedBy,
		})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
