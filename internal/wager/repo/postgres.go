package repo

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/wager"
)

// código Postgres de foreign_key_violation
const pqForeignKeyViolation = "23503"

// Postgres implementa wager.Store sobre as tabelas wagers, wager_legs e unit_ledger
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres retorna o repositório; timeout limita cada chamada ao banco
func NewPostgres(db *sql.DB, timeout time.Duration) *Postgres {
	return &Postgres{db: db, timeout: timeout}
}

var _ wager.Store = (*Postgres)(nil)

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Create insere a aposta pending e suas pernas numa transação
func (p *Postgres) Create(ctx context.Context, w *wager.Wager) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &wager.PersistenceError{Op: "create", Err: err}
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO wagers (owner_id, group_id, kind, units, odds, odds_overridden, status, destination, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,NOW(),NOW())
		RETURNING id`,
		w.OwnerID, w.GroupID, w.Kind.String(), w.Units, w.Odds, w.OddsOverridden, w.Destination,
	).Scan(&id)
	if err != nil {
		return 0, &wager.PersistenceError{Op: "create", Err: err}
	}

	for _, l := range w.Legs {
		r := toLegRow(id, l)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO wager_legs
			  (wager_id, position, game_id, manual_home, manual_away, league, line_type, description, odds,
			   selection_kind, side, player, prop_type, prop_line)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			r.WagerID, r.Position, r.GameID, r.ManualHome, r.ManualAway, r.League, r.LineType, r.Description, r.Odds,
			r.SelectionKind, r.Side, r.Player, r.PropType, r.PropLine,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
				return 0, &wager.IntegrityError{Entity: "game", Ref: strconv.FormatInt(r.GameID.Int64, 10)}
			}
			return 0, &wager.PersistenceError{Op: "create leg", Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, &wager.PersistenceError{Op: "create", Err: err}
	}
	return id, nil
}

const selectWager = `
	SELECT id, owner_id, group_id, kind, units, odds, odds_overridden, status,
	       COALESCE(result_description, ''), COALESCE(result_value, 0), destination, created_at, updated_at
	FROM wagers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWager(s rowScanner) (*wager.Wager, error) {
	var (
		w      wager.Wager
		kind   string
		status string
	)
	err := s.Scan(&w.ID, &w.OwnerID, &w.GroupID, &kind, &w.Units, &w.Odds, &w.OddsOverridden, &status,
		&w.ResultDescription, &w.ResultValue, &w.Destination, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if w.Kind, err = wager.ParseKind(kind); err != nil {
		return nil, err
	}
	if w.Status, err = wager.ParseStatus(status); err != nil {
		return nil, err
	}
	return &w, nil
}

// Get retorna a aposta com as pernas ordenadas por posição
func (p *Postgres) Get(ctx context.Context, id int64) (*wager.Wager, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	w, err := scanWager(p.db.QueryRowContext(ctx, selectWager+` WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wager.ErrNotFound
	}
	if err != nil {
		return nil, &wager.PersistenceError{Op: "get", Err: err}
	}
	legs, err := p.loadLegs(ctx, []int64{id})
	if err != nil {
		return nil, &wager.PersistenceError{Op: "get legs", Err: err}
	}
	w.Legs = legs[id]
	return w, nil
}

func (p *Postgres) loadLegs(ctx context.Context, ids []int64) (map[int64][]wager.Leg, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT wager_id, position, game_id, manual_home, manual_away, league, line_type, description, odds,
		       selection_kind, side, player, prop_type, prop_line, outcome
		FROM wager_legs
		WHERE wager_id = ANY($1)
		ORDER BY wager_id, position`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]wager.Leg, len(ids))
	for rows.Next() {
		var r legRow
		if err := rows.Scan(&r.WagerID, &r.Position, &r.GameID, &r.ManualHome, &r.ManualAway, &r.League, &r.LineType,
			&r.Description, &r.Odds, &r.SelectionKind, &r.Side, &r.Player, &r.PropType, &r.PropLine, &r.Outcome); err != nil {
			return nil, err
		}
		l, err := r.toLeg()
		if err != nil {
			return nil, err
		}
		out[r.WagerID] = append(out[r.WagerID], l)
	}
	return out, rows.Err()
}

// UpdateStatus transiciona uma aposta pending; atualização condicional por linha
func (p *Postgres) UpdateStatus(ctx context.Context, id int64, status wager.Status, description string, value decimal.Decimal) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, `
		UPDATE wagers SET status=$1, result_description=$2, result_value=$3, updated_at=NOW()
		WHERE id=$4 AND status='pending'`, string(status), description, value, id)
	if err != nil {
		return &wager.PersistenceError{Op: "update status", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &wager.PersistenceError{Op: "update status", Err: err}
	}
	if n == 0 {
		return p.notPendingOrMissing(ctx, id)
	}
	return nil
}

func (p *Postgres) notPendingOrMissing(ctx context.Context, id int64) error {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM wagers WHERE id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.ErrNotFound
	}
	if err != nil {
		return &wager.PersistenceError{Op: "lookup", Err: err}
	}
	return wager.ErrNotPending
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertLedger = `
	INSERT INTO unit_ledger (owner_id, group_id, year, month, delta, graded, updated_at)
	VALUES ($1,$2,$3,$4,$5,1,NOW())
	ON CONFLICT (owner_id, group_id, year, month) DO UPDATE SET
	  delta      = unit_ledger.delta + EXCLUDED.delta,
	  graded     = unit_ledger.graded + 1,
	  updated_at = EXCLUDED.updated_at`

func upsertLedgerWith(ctx context.Context, e execer, key wager.LedgerKey, delta decimal.Decimal) error {
	_, err := e.ExecContext(ctx, upsertLedger, key.OwnerID, key.GroupID, key.Year, key.Month, delta)
	return err
}

// UpsertLedger soma delta à linha (owner, group, ano, mês), criando-a se necessário
func (p *Postgres) UpsertLedger(ctx context.Context, key wager.LedgerKey, delta decimal.Decimal) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := upsertLedgerWith(ctx, p.db, key, delta); err != nil {
		return &wager.PersistenceError{Op: "upsert ledger", Err: err}
	}
	return nil
}

// ApplyResult grava o resultado e o ledger na mesma transação, com lock pessimista na linha da aposta
func (p *Postgres) ApplyResult(ctx context.Context, id int64, r wager.Result) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &wager.PersistenceError{Op: "apply result", Err: err}
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM wagers WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return wager.ErrNotFound
	}
	if err != nil {
		return &wager.PersistenceError{Op: "apply result", Err: err}
	}
	if wager.Status(status) != wager.StatusPending {
		return wager.ErrNotPending
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE wagers SET status=$1, result_description=$2, result_value=$3, updated_at=NOW()
		WHERE id=$4`, string(r.Status), r.Description, r.Value, id); err != nil {
		return &wager.PersistenceError{Op: "apply result", Err: err}
	}
	for pos, outcome := range r.LegOutcomes {
		if _, err = tx.ExecContext(ctx, `
			UPDATE wager_legs SET outcome=$1 WHERE wager_id=$2 AND position=$3`, outcome, id, pos); err != nil {
			return &wager.PersistenceError{Op: "apply result legs", Err: err}
		}
	}
	if r.Ledger != nil {
		if err = upsertLedgerWith(ctx, tx, *r.Ledger, r.Value); err != nil {
			return &wager.PersistenceError{Op: "apply result ledger", Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return &wager.PersistenceError{Op: "apply result", Err: err}
	}
	return nil
}

// Ledger lê a linha do período; ausente devolve delta zero
func (p *Postgres) Ledger(ctx context.Context, key wager.LedgerKey) (wager.LedgerEntry, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	e := wager.LedgerEntry{LedgerKey: key}
	err := p.db.QueryRowContext(ctx, `
		SELECT delta, graded, updated_at FROM unit_ledger
		WHERE owner_id=$1 AND group_id=$2 AND year=$3 AND month=$4`,
		key.OwnerID, key.GroupID, key.Year, key.Month,
	).Scan(&e.Delta, &e.Graded, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, nil
	}
	if err != nil {
		return e, &wager.PersistenceError{Op: "ledger", Err: err}
	}
	return e, nil
}

// ListPending lista apostas pending criadas antes de createdBefore (para o sweep externo de apostas presas)
func (p *Postgres) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]wager.Wager, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, selectWager+`
		WHERE status='pending' AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, &wager.PersistenceError{Op: "list pending", Err: err}
	}
	defer rows.Close()

	var (
		out []wager.Wager
		ids []int64
	)
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, &wager.PersistenceError{Op: "list pending", Err: err}
		}
		out = append(out, *w)
		ids = append(ids, w.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, &wager.PersistenceError{Op: "list pending", Err: err}
	}
	if len(ids) == 0 {
		return out, nil
	}
	legs, err := p.loadLegs(ctx, ids)
	if err != nil {
		return nil, &wager.PersistenceError{Op: "list pending legs", Err: err}
	}
	for i := range out {
		out[i].Legs = legs[out[i].ID]
	}
	return out, nil
}
