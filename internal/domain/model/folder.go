package model

import "time"

// AllowedType — допустимый тип файлов в папке.
type AllowedType string

const (
	AllowedTypePDF  AllowedType = "pdf"
	AllowedTypeCSV  AllowedType = "csv"
	AllowedTypeJSON AllowedType = "json"
)

// DefaultAllowedType — тип папки по умолчанию.
const DefaultAllowedType = AllowedTypeCSV

// ParseAllowedType разбирает строковое значение типа папки.
func ParseAllowedType(s string) (AllowedType, bool) {
	switch AllowedType(s) {
	case AllowedTypePDF, AllowedTypeCSV, AllowedTypeJSON:
		return AllowedType(s), true
	default:
		return "", false
	}
}

// Folder — папка пользователя. Папки образуют дерево через ParentID,
// удаление папки каскадно удаляет вложенные папки и файлы.
type Folder struct {
	// ID — UUID папки
	ID string
	// Name — имя папки
	Name string
	// ParentID — UUID родительской папки (nil — корневая)
	ParentID *string
	// AllowedType — единственное допустимое расширение файлов папки
	AllowedType AllowedType
	// CreatedBy — идентификатор создателя (sub из JWT)
	CreatedBy *string
	// Description — описание папки (опционально)
	Description *string
	// IsPublic — папка доступна всем
	IsPublic bool
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Accepts проверяет, что имя файла имеет расширение, разрешённое папкой.
// Сравнение расширения без учёта регистра.
func (f *Folder) Accepts(filename string) bool {
	if f.AllowedType == "" {
		return true
	}
	return Extension(filename) == string(f.AllowedType)
}
