package provisioning

import "sort"

const (
	PropertyFirstName   = "FirstName"
	PropertyLastName    = "LastName"
	PropertyMiddleName  = "MiddleName"
	PropertyEmail       = "Email"
	PropertyPhoneNumber = "PhoneNumber"
	PropertyWorkshopID  = "WorkshopId"
	PropertyIsBlocked   = "IsBlocked"
)

var trackedAccessors = map[string]func(*User) string{
	PropertyFirstName:   func(u *User) string { return u.FirstName },
	PropertyLastName:    func(u *User) string { return u.LastName },
	PropertyMiddleName:  func(u *User) string { return u.MiddleName },
	PropertyEmail:       func(u *User) string { return u.Email },
	PropertyPhoneNumber: func(u *User) string { return u.Phone },
}

// TrackableProperties lists the identity properties that can be audited
func TrackableProperties() []string {
	out := make([]string, 0, len(trackedAccessors))
	for name := range trackedAccessors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PropertyValue is one tracked property with its value
type PropertyValue struct {
	Name  string
	Value string
}

// snapshot reads the tracked properties of user in configuration order
func snapshot(user *User, properties []string) []PropertyValue {
	if user == nil {
		return nil
	}
	out := make([]PropertyValue, 0, len(properties))
	for _, name := range properties {
		get, ok := trackedAccessors[name]
		if !ok {
			continue
		}
		out = append(out, PropertyValue{Name: name, Value: get(user)})
	}
	return out
}

// propertyChange is an old -> new transition of a tracked property
type propertyChange struct {
	Name     string
	OldValue string
	NewValue string
}

// diffSnapshots returns the properties whose value changed
func diffSnapshots(before, after []PropertyValue) []propertyChange {
	old := make(map[string]string, len(before))
	for _, p := range before {
		old[p.Name] = p.Value
	}

	var changes []propertyChange
	for _, p := range after {
		prev := old[p.Name]
		if prev == p.Value {
			continue
		}
		changes = append(changes, propertyChange{
			Name:     p.Name,
			OldValue: prev,
			NewValue: p.Value,
		})
	}
	return changes
}
