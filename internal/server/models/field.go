package models

import "strings"

// Field addresses one column of a business object. The numbers are stable and
// part of the client protocol.
type Field int

const (
	FieldID             Field = 1
	FieldCreatedBy      Field = 2
	FieldModifiedBy     Field = 3
	FieldCreationDate   Field = 4
	FieldLastModified   Field = 5
	FieldFolderID       Field = 20
	FieldDisplayName    Field = 500
	FieldGivenName      Field = 501
	FieldSurname        Field = 502
	FieldNote           Field = 518
	FieldDepartment     Field = 519
	FieldInternalUserID Field = 524
	FieldPhoneBusiness  Field = 542
	FieldPhoneMobile    Field = 551
	FieldEmail1         Field = 555
	FieldEmail2         Field = 556
	FieldEmail3         Field = 557
	FieldCompany        Field = 569
	FieldAttributes     Field = 9000
)

type fieldInfo struct {
	column string
	text   bool
}

var fields = map[Field]fieldInfo{
	FieldID:             {column: "id"},
	FieldCreatedBy:      {column: "created_by"},
	FieldModifiedBy:     {column: "changed_by"},
	FieldCreationDate:   {column: "creation_date"},
	FieldLastModified:   {column: "changing_date"},
	FieldFolderID:       {column: "folder_id"},
	FieldInternalUserID: {column: "internal_user_id"},
	FieldAttributes:     {column: "attributes"},

	FieldDisplayName:   {column: "display_name", text: true},
	FieldGivenName:     {column: "given_name", text: true},
	FieldSurname:       {column: "surname", text: true},
	FieldNote:          {column: "note", text: true},
	FieldDepartment:    {column: "department", text: true},
	FieldPhoneBusiness: {column: "phone_business", text: true},
	FieldPhoneMobile:   {column: "phone_mobile", text: true},
	FieldEmail1:        {column: "email1", text: true},
	FieldEmail2:        {column: "email2", text: true},
	FieldEmail3:        {column: "email3", text: true},
	FieldCompany:       {column: "company", text: true},
}

// Column returns the store column of f.
func (f Field) Column() (string, bool) {
	info, ok := fields[f]
	return info.column, ok
}

// IsText reports whether f is a free-form value field kept in Object.Values.
func (f Field) IsText() bool { return fields[f].text }

func (f Field) Valid() bool {
	_, ok := fields[f]
	return ok
}

// TextFields lists all value fields in ascending order.
func TextFields() []Field {
	return []Field{
		FieldDisplayName, FieldGivenName, FieldSurname, FieldNote, FieldDepartment,
		FieldPhoneBusiness, FieldPhoneMobile, FieldEmail1, FieldEmail2, FieldEmail3,
		FieldCompany,
	}
}

// EmailFields are the address fields consulted by auto-complete.
var EmailFields = []Field{FieldEmail1, FieldEmail2, FieldEmail3}

// SearchFields are matched by a plain pattern search.
var SearchFields = []Field{
	FieldDisplayName, FieldGivenName, FieldSurname, FieldCompany,
	FieldEmail1, FieldEmail2, FieldEmail3,
}

// SpecialSortFields is the fixed default ordering.
var SpecialSortFields = []Field{FieldSurname, FieldDisplayName, FieldCompany, FieldEmail1, FieldEmail2}

// OrderDirection of a projected read or search.
type OrderDirection int

const (
	OrderAsc OrderDirection = iota
	OrderDesc
)

// CompareSpecial orders two objects by SpecialSortFields. Comparison ignores
// case and puts empty values last; ties fall back to the object id.
func CompareSpecial(a, b *Object) int {
	for _, f := range SpecialSortFields {
		av, bv := strings.ToLower(a.Values[f]), strings.ToLower(b.Values[f])
		switch {
		case av == bv:
			continue
		case av == "":
			return 1
		case bv == "":
			return -1
		case av < bv:
			return -1
		default:
			return 1
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// CompareField orders a and b by f the way the store does: text case
// insensitively with empty values last in either direction.
func CompareField(a, b *Object, f Field, dir OrderDirection) int {
	sign := 1
	if dir == OrderDesc {
		sign = -1
	}
	if f.IsText() {
		av, bv := strings.ToLower(a.Value(f)), strings.ToLower(b.Value(f))
		switch {
		case av == bv:
			return 0
		case av == "":
			return 1
		case bv == "":
			return -1
		}
		return sign * strings.Compare(av, bv)
	}
	var av, bv int64
	switch f {
	case FieldID:
		av, bv = int64(a.ID), int64(b.ID)
	case FieldFolderID:
		av, bv = int64(a.FolderID), int64(b.FolderID)
	case FieldCreatedBy:
		av, bv = int64(a.CreatedBy), int64(b.CreatedBy)
	case FieldModifiedBy:
		av, bv = int64(a.ModifiedBy), int64(b.ModifiedBy)
	case FieldCreationDate:
		av, bv = ToMillis(a.CreatedAt), ToMillis(b.CreatedAt)
	case FieldLastModified:
		av, bv = ToMillis(a.LastModified), ToMillis(b.LastModified)
	case FieldInternalUserID:
		av, bv = int64(a.InternalUserID), int64(b.InternalUserID)
	}
	switch {
	case av < bv:
		return -sign
	case av > bv:
		return sign
	}
	return 0
}
