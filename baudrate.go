package serialplot

type BaudRate int

func (b BaudRate) Int() int {
	return int(b)
}

const (
	Baud9600   BaudRate = 9600
	Baud19200  BaudRate = 19200
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200
)

// AllowedBaudRates is the selectable set, in ascending order.
var AllowedBaudRates = []BaudRate{Baud9600, Baud19200, Baud38400, Baud57600, Baud115200}

// DefaultBaudRate matches the usual Arduino sketch setting.
const DefaultBaudRate = Baud9600

func isAllowedBaudRate(rate int) bool {
	for _, b := range AllowedBaudRates {
		if b.Int() == rate {
			return true
		}
	}
	return false
}
