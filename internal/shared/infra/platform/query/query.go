package query

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// OffsetPagination para paginación clásica limit/offset
type OffsetPagination struct {
	Limit  int
	Offset int
}

// Normalize aplica el límite por defecto y el máximo, y corrige un offset negativo.
func (p OffsetPagination) Normalize() OffsetPagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Window devuelve los límites [start, end) de la página sobre total elementos.
func (p OffsetPagination) Window(total int) (int, int) {
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}

// Sort indica campo y dirección.
type Sort struct {
	Field string // e.g. "created_at", "timestamp"
	Desc  bool
}
