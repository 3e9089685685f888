package users

import (
	"gorm.io/gorm"

	"github.com/memtensor/usergrid/pkg/datatable"
)

// TableName is the name of the users grid in logs and metrics
const TableName = "users"

// NewTable defines the users grid: every non-admin account, searchable by
// name, phone and email. Searching the full name also matches usernames.
func NewTable(opts ...datatable.Option) *datatable.Table[User] {
	registry := datatable.NewRegistry[User]().MustRegister(
		datatable.NewColumn("id").AsOrderable().AsExportable().WithTitle("ID"),
		datatable.NewColumn("username").AsOrderable().AsExportable().WithTitle("Username"),
		datatable.NewColumn("full_name").AsSearchable().AsOrderable().AsExportable().AsPrintable().WithTitle("Full name"),
		datatable.NewColumn("phone").AsSearchable().AsExportable().AsPrintable().WithTitle("Phone"),
		datatable.NewColumn("email").AsSearchable().AsExportable().AsPrintable().WithTitle("Email"),
		datatable.NewColumn("contact").WithTitle("Contact").WithClassName("text-nowrap"),
	)

	if err := registry.SetCustomFilter("full_name", func(keyword string) datatable.Predicate {
		return datatable.Or(
			datatable.ContainsFold("full_name", keyword),
			datatable.ContainsFold("username", keyword),
		)
	}); err != nil {
		panic(err)
	}

	registry.
		AddComputedColumn("contact", func(u *User) interface{} {
			if email := u.EmailAddress(); email != "" {
				return email
			}
			return u.PhoneNumber()
		}).
		EnableRowIndex("")

	return datatable.NewTable(TableName, registry, func(db *gorm.DB) datatable.Query[User] {
		return datatable.FromGorm[User](db.Model(&User{}).Where("is_admin = ?", false))
	}, opts...)
}
