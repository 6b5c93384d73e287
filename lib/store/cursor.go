package store

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/fiffu/substore/lib/models"
)

// Page is one page of a paginated scan. PageState is empty once the scan is exhausted.
type Page struct {
	Rows      []Row
	PageState string
}

// EncodePageState renders the session's continuation bytes as an opaque token.
func EncodePageState(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(state)
}

// DecodePageState reverses EncodePageState. An empty token starts a fresh scan.
func DecodePageState(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	state, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid page state", models.ErrBadRequest)
	}
	return state, nil
}

// paginate runs stmt from pageState and collects at most fetchSize rows. Resuming a
// token under a different statement is the caller's responsibility and is not checked.
func paginate(ctx context.Context, session Session, stmt Statement, pageState string, fetchSize int) (Page, error) {
	state, err := DecodePageState(pageState)
	if err != nil {
		return Page{}, err
	}

	rows := []Row{}
	next, err := session.Paginate(ctx, stmt, state, fetchSize, func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Rows: rows, PageState: EncodePageState(next)}, nil
}
