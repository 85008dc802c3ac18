package diff

import (
	"time"

	domain "mppchs/pkg/domain"
)

var fixedTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func id(v int64) domain.DependentID { return domain.DependentID(v) }
