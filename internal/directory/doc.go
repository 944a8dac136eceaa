// Package directory imports the employee roster from a TOML file into the
// store: shifts first, then employees referencing shifts by name, then
// leave ranges. The whole file is validated before anything is written.
//
// Example roster:
//
//	[[shifts]]
//	name = "day"
//	start = "09:00"
//	end = "17:00"
//	break_minutes = 30
//
//	[[employees]]
//	code = "E001"
//	name = "Sara Haddad"
//	device_user_id = "7"
//	shift = "day"
//
//	[[leaves]]
//	employee = "E001"
//	start = "2024-03-10"
//	end = "2024-03-12"
//	status = "approved"
package directory
