package usecases

import (
	"fmt"
	"math"
)

// Messages holds the announcement texts. Templates take the rider name as the first verb.
type Messages struct {
	RiderName  string
	Far        string
	Mid        string
	Near       string // rider name, alarm radius in meters
	Arrived    string
	Reset      string
	ResetAlert string
}

// DefaultMessages returns the stock announcement set for riderName.
func DefaultMessages(riderName string) Messages {
	return Messages{
		RiderName:  riderName,
		Far:        "Still a long way to go, %s. Stay relaxed.",
		Mid:        "You're getting closer, %s. About one kilometer away!",
		Near:       "Hey %s, you're within %d meters of your destination!",
		Arrived:    "Welcome to your destination, %s!",
		Reset:      "Alarm reset for your next trip, %s!",
		ResetAlert: "Alarm reset for next destination.",
	}
}

func (m Messages) far() string     { return fmt.Sprintf(m.Far, m.RiderName) }
func (m Messages) mid() string     { return fmt.Sprintf(m.Mid, m.RiderName) }
func (m Messages) arrived() string { return fmt.Sprintf(m.Arrived, m.RiderName) }
func (m Messages) reset() string   { return fmt.Sprintf(m.Reset, m.RiderName) }

func (m Messages) near(radius float64) string {
	return fmt.Sprintf(m.Near, m.RiderName, int(math.Round(radius)))
}
