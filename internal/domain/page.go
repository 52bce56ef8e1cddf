package domain

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PageRequest задаёт параметры постраничной выборки списков.
type PageRequest struct {
	// Page нумеруется с единицы.
	Page int
	// Limit — размер страницы; значения вне [1, 100] приводятся к умолчанию.
	Limit int
	// SortField — имя поля сортировки; пустое значение означает created_at.
	SortField string
	// Desc задаёт направление сортировки.
	Desc bool
}

// Normalize приводит параметры страницы к допустимым значениям.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > maxPageLimit {
		p.Limit = defaultPageLimit
	}
	if p.SortField == "" {
		p.SortField = "created_at"
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}
