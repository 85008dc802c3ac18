// Package conflict enforces uniqueness of sensitive identifiers that are
// stored only as ciphertext plus a masked suffix.
//
// A candidate value is checked in three places, in order:
//
//  1. the submission itself (a national id repeated across the beneficiary
//     and its dependents)
//  2. live rows, shortlisted by masked suffix and then decrypted for exact
//     comparison
//  3. the after-payload of every other beneficiary's pending or needs_info
//     request
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	bmodels "mppchs/internal/beneficiary/models"
	"mppchs/internal/changerequest/models"
	"mppchs/internal/platform/metrics"
	id "mppchs/pkg/domain"
	dErrors "mppchs/pkg/domain-errors"
	"mppchs/pkg/platform/crypto"
)

// Source says where a colliding value was found.
type Source string

const (
	SourceLive      Source = "live"
	SourcePending   Source = "pending"
	SourceDuplicate Source = "duplicate"
)

// Error describes one collision. It is wrapped in a CodeConflict domain
// error; use errors.As to recover it.
type Error struct {
	Field  string
	Source Source
}

func (e *Error) Error() string {
	switch e.Source {
	case SourceLive:
		return e.Field + " is already registered"
	case SourcePending:
		return e.Field + " conflicts with a pending change request"
	default:
		return e.Field + " is duplicated in this submission"
	}
}

func newConflict(field string, source Source) error {
	ce := &Error{Field: field, Source: source}
	return dErrors.Wrap(ce, dErrors.CodeConflict, ce.Error())
}

// AsError extracts the collision details from err.
func AsError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

// LiveIndex shortlists live rows by masked identifier.
type LiveIndex interface {
	Shortlist(ctx context.Context, kind bmodels.IdentifierKind, masked string) ([]bmodels.Candidate, error)
}

// OpenRequests lists open requests of other beneficiaries.
type OpenRequests interface {
	ListOpen(ctx context.Context, statuses []models.Status, exclude id.BeneficiaryID) ([]*models.ChangeRequest, error)
}

// Decrypter reverses field encryption.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// reviewStatuses are the open states whose payloads reserve identifiers.
// Drafts are private to their beneficiary and reserve nothing.
var reviewStatuses = []models.Status{models.StatusPending, models.StatusNeedsInfo}

const shortlistConcurrency = 4

// Detector checks sensitive identifier uniqueness.
type Detector struct {
	live      LiveIndex
	open      OpenRequests
	decrypter Decrypter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Detector)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

func New(live LiveIndex, open OpenRequests, decrypter Decrypter, opts ...Option) *Detector {
	d := &Detector{live: live, open: open, decrypter: decrypter, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// lookup is one value to check.
type lookup struct {
	field   string
	kind    bmodels.IdentifierKind
	value   string
	visible int
}

// Check verifies that every sensitive identifier introduced by after is
// unique. Values unchanged from before are trusted. Rows of the beneficiary
// being edited are not treated as collisions since after supersedes them.
func (d *Detector) Check(ctx context.Context, beneficiaryID id.BeneficiaryID, before, after models.BeneficiarySnapshot) error {
	before, after = before.Normalized(), after.Normalized()

	lookups := collectLookups(before, after)
	if len(lookups) == 0 {
		return nil
	}
	if err := d.checkDuplicates(after, lookups); err != nil {
		return err
	}

	candidates := make([][]bmodels.Candidate, len(lookups))
	var others []*models.ChangeRequest

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shortlistConcurrency)
	g.Go(func() error {
		reqs, err := d.open.ListOpen(gctx, reviewStatuses, beneficiaryID)
		if err != nil {
			return fmt.Errorf("listing open requests: %w", err)
		}
		others = reqs
		return nil
	})
	for i, p := range lookups {
		g.Go(func() error {
			found, err := d.live.Shortlist(gctx, p.kind, crypto.Mask(p.value, p.visible))
			if err != nil {
				return fmt.Errorf("shortlisting %s: %w", p.field, err)
			}
			d.metrics.ObserveShortlist(len(found))
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	reserved := reservedValues(others)
	for i, p := range lookups {
		hit, err := d.matchLive(p, beneficiaryID, candidates[i])
		if err != nil {
			return err
		}
		if hit {
			return d.report(ctx, beneficiaryID, p.field, SourceLive)
		}
		if _, taken := reserved[reservation{kind: p.kind, value: p.value}]; taken {
			return d.report(ctx, beneficiaryID, p.field, SourcePending)
		}
	}
	return nil
}

func (d *Detector) report(ctx context.Context, beneficiaryID id.BeneficiaryID, field string, source Source) error {
	d.metrics.IncrementConflict(field, string(source))
	d.logger.InfoContext(ctx, "identifier conflict",
		"beneficiary_id", beneficiaryID,
		"field", field,
		"source", source,
	)
	return newConflict(field, source)
}

// matchLive decrypts shortlisted rows and compares exactly. A suffix match
// with a different full value is not a collision.
func (d *Detector) matchLive(p lookup, self id.BeneficiaryID, candidates []bmodels.Candidate) (bool, error) {
	for _, c := range candidates {
		if c.BeneficiaryID == self {
			continue
		}
		plain, err := d.decrypter.Decrypt(c.Ciphertext)
		if err != nil {
			return false, fmt.Errorf("decrypting candidate for %s: %w", p.field, err)
		}
		if normalizeFor(p.kind, plain) == p.value {
			return true, nil
		}
	}
	return false, nil
}

// checkDuplicates rejects a national id used twice within after. Pairs made
// only of values already on record are left alone; at least one side must be
// a newly introduced value (one of lookups).
func (d *Detector) checkDuplicates(after models.BeneficiarySnapshot, lookups []lookup) error {
	introduced := make(map[string]bool, len(lookups))
	for _, p := range lookups {
		introduced[p.field] = true
	}
	seen := make(map[string]string)
	if after.AadhaarNumber != "" {
		seen[after.AadhaarNumber] = "aadhaar_number"
	}
	for i, dep := range after.Dependents {
		if dep.Removed || dep.AadhaarNumber == "" {
			continue
		}
		field := dependentField(i)
		if other, dup := seen[dep.AadhaarNumber]; dup && (introduced[field] || introduced[other]) {
			d.metrics.IncrementConflict(field, string(SourceDuplicate))
			return newConflict(field, SourceDuplicate)
		}
		if _, dup := seen[dep.AadhaarNumber]; !dup {
			seen[dep.AadhaarNumber] = field
		}
	}
	return nil
}

func dependentField(i int) string {
	return "dependents[" + strconv.Itoa(i) + "].aadhaar_number"
}

func collectLookups(before, after models.BeneficiarySnapshot) []lookup {
	var lookups []lookup
	for _, key := range []string{"aadhaar_number", "pan_number"} {
		f, _ := models.BeneficiaryField(key)
		av := f.Get(&after)
		if av == "" || av == f.Get(&before) {
			continue
		}
		lookups = append(lookups, lookup{field: key, kind: f.Sensitive.Kind, value: av, visible: f.Sensitive.Visible})
	}

	f, _ := models.DependentField("aadhaar_number")
	prior := make(map[models.Identity]string, len(before.Dependents))
	for _, dep := range before.Dependents {
		prior[dep.Identity] = dep.AadhaarNumber
	}
	for i, dep := range after.Dependents {
		if dep.Removed || dep.AadhaarNumber == "" {
			continue
		}
		if old, ok := prior[dep.Identity]; ok && !dep.Identity.IsZero() && old == dep.AadhaarNumber {
			continue
		}
		lookups = append(lookups, lookup{field: dependentField(i), kind: f.Sensitive.Kind, value: dep.AadhaarNumber, visible: f.Sensitive.Visible})
	}
	return lookups
}

type reservation struct {
	kind  bmodels.IdentifierKind
	value string
}

// reservedValues scans open payloads. This is a full scan per call and is
// only meant for a small number of simultaneously open requests.
func reservedValues(reqs []*models.ChangeRequest) map[reservation]struct{} {
	out := make(map[reservation]struct{})
	add := func(kind bmodels.IdentifierKind, v string) {
		if v = normalizeFor(kind, v); v != "" {
			out[reservation{kind: kind, value: v}] = struct{}{}
		}
	}
	for _, r := range reqs {
		add(bmodels.NationalID, r.After.AadhaarNumber)
		add(bmodels.TaxID, r.After.PANNumber)
		for _, dep := range r.After.Dependents {
			if !dep.Removed {
				add(bmodels.NationalID, dep.AadhaarNumber)
			}
		}
	}
	return out
}

func normalizeFor(kind bmodels.IdentifierKind, v string) string {
	if kind == bmodels.TaxID {
		return crypto.UpperAlnum(v)
	}
	return crypto.DigitsOnly(v)
}
