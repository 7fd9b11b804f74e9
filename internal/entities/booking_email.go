package entities

type BookingEmailData struct {
	UserName           string
	BookingID          string
	ServiceName        string
	OrganizationName   string
	StartTimeFormatted string
	EndTimeFormatted   string
	CurrentYear        int
	Language           string
	Status             string
}
