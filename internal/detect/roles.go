// Package detect guesses which warehouse columns hold a contact's name,
// email, and postal address parts from field metadata alone.
package detect

// Role is a mailing-list column role.
type Role string

const (
	RoleName    Role = "name"
	RoleEmail   Role = "email"
	RoleAddress Role = "address"
	RoleCity    Role = "city"
	RoleState   Role = "state"
	RoleZipcode Role = "zipcode"
	RoleCountry Role = "country"
)

// RolePatterns is one entry of the detection table: a role, the patterns
// that identify it (tried in order), and an optional preferred base type
// used by the typed pass.
type RolePatterns struct {
	Role          Role
	Patterns      []string
	PreferredType string
}

// DefaultRoles is the detection table used for mailing-list exports. Order
// matters twice over: roles claim fields in this order, so email runs
// before address to keep "email_address" out of the address role; and
// patterns are tried first to last within a role.
var DefaultRoles = []RolePatterns{
	{
		Role:          RoleEmail,
		Patterns:      []string{"email", "e_mail", "e-mail", "mail_address", "mailaddress", "メールアドレス", "メール", "mail"},
		PreferredType: "type/Text",
	},
	{
		Role:          RoleName,
		Patterns:      []string{"full_name", "fullname", "contact_name", "customer_name", "name", "氏名", "お名前", "名前"},
		PreferredType: "type/Text",
	},
	{
		Role:          RoleAddress,
		Patterns:      []string{"street_address", "address", "street", "addr", "住所", "所在地"},
		PreferredType: "type/Text",
	},
	{
		Role:     RoleCity,
		Patterns: []string{"city", "town", "市区町村", "市町村"},
	},
	{
		Role:     RoleState,
		Patterns: []string{"state", "prefecture", "province", "region", "都道府県"},
	},
	{
		Role:     RoleZipcode,
		Patterns: []string{"zipcode", "zip_code", "postal_code", "postcode", "zip", "postal", "郵便番号"},
	},
	{
		Role:     RoleCountry,
		Patterns: []string{"country", "nation", "国名", "国"},
	},
}

// Patterns returns the pattern list for role in DefaultRoles.
func Patterns(role Role) []string {
	for _, rp := range DefaultRoles {
		if rp.Role == role {
			return rp.Patterns
		}
	}
	return nil
}
