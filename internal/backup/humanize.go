package backup

import (
	"fmt"
	"math"
	"strconv"
)

const sizeUnits = "BKMGTP"

// HumanSize renders a byte count as "512.00B", "2.00K", "1.50M" and so on.
// The unit is chosen from the number of decimal digits, so 1000 bytes is
// shown as "0.98K".
func HumanSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	factor := (len(strconv.FormatInt(bytes, 10)) - 1) / 3
	if factor >= len(sizeUnits) {
		factor = len(sizeUnits) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(factor))
	return fmt.Sprintf("%.2f%c", value, sizeUnits[factor])
}
