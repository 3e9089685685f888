package datatable

import (
	"math"
	"strings"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// Paging defaults
const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Client facing validation messages
const (
	MsgLimitExceeded = "Invalid `limit` params! Reach max limit!"
	MsgInvalidLimit  = "Invalid `limit` params!"
	MsgInvalidPage   = "Invalid `page` params!"
	MsgInvalidAction = "Invalid `action` params!"
	MsgInvalidSort   = "Invalid `sort` params!"
)

// Mode selects how a render is delivered
type Mode string

const (
	ModeAJAX   Mode = "ajax"
	ModeExport Mode = "export"
)

// ParseMode accepts ajax, export and the legacy excel alias. Empty means ajax.
func ParseMode(action string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "", "ajax":
		return ModeAJAX, true
	case "export", "excel", "csv":
		return ModeExport, true
	default:
		return "", false
	}
}

// Limits bounds the page size
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits returns 25 per page, at most 100
func DefaultLimits() Limits {
	return Limits{Default: DefaultLimit, Max: MaxLimit}
}

// Params are the raw query string values of a datatable request. Page and
// PageSize are nil when absent.
type Params struct {
	Keyword  string `form:"k" json:"k"`
	Page     *int   `form:"p" json:"p"`
	PageSize *int   `form:"ipp" json:"ipp"`
	Action   string `form:"action" json:"action"`
	Sort     string `form:"sort" json:"sort"`
	Dir      string `form:"dir" json:"dir"`
}

// RequestOptions are the validated inputs of one render
type RequestOptions struct {
	Keyword  string
	Page     int
	PageSize int
	Mode     Mode
	SortKey  string
	SortDesc bool
}

// Offset is the number of rows before the requested page
func (o RequestOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// ParseOptions validates params against limits. The keyword is lower-cased.
func ParseOptions(p Params, limits Limits) (RequestOptions, error) {
	if limits.Default <= 0 {
		limits.Default = DefaultLimit
	}
	if limits.Max <= 0 {
		limits.Max = MaxLimit
	}

	opts := RequestOptions{
		Keyword:  strings.ToLower(p.Keyword),
		Page:     1,
		PageSize: limits.Default,
		SortKey:  strings.TrimSpace(p.Sort),
	}

	if p.Page != nil {
		if *p.Page < 1 {
			return RequestOptions{}, apperrors.NewValidationError(MsgInvalidPage).WithDetail("p", *p.Page)
		}
		opts.Page = *p.Page
	}

	if p.PageSize != nil {
		if *p.PageSize < 1 {
			return RequestOptions{}, apperrors.NewValidationError(MsgInvalidLimit).WithDetail("ipp", *p.PageSize)
		}
		if *p.PageSize > limits.Max {
			return RequestOptions{}, apperrors.NewValidationError(MsgLimitExceeded).
				WithDetail("ipp", *p.PageSize).WithDetail("max", limits.Max)
		}
		opts.PageSize = *p.PageSize
	}

	// the offset must fit in an int
	if opts.Page-1 > math.MaxInt/opts.PageSize {
		return RequestOptions{}, apperrors.NewValidationError(MsgInvalidPage).WithDetail("p", opts.Page)
	}

	mode, ok := ParseMode(p.Action)
	if !ok {
		return RequestOptions{}, apperrors.NewValidationError(MsgInvalidAction).WithDetail("action", p.Action)
	}
	opts.Mode = mode

	switch strings.ToLower(strings.TrimSpace(p.Dir)) {
	case "", "asc":
	case "desc":
		opts.SortDesc = true
	default:
		return RequestOptions{}, apperrors.NewValidationError(MsgInvalidSort).WithDetail("dir", p.Dir)
	}

	return opts, nil
}
