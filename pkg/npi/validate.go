package npi

// cmsPrefix is the ISO card issuer prefix the NPI check digit is computed over.
var cmsPrefix = [5]int{8, 0, 8, 4, 0}

// IsValid reports whether number is a ten-digit NPI whose last digit is the
// Luhn check digit over 80840 followed by the first nine digits.
func IsValid(number string) bool {
	if len(number) != 10 {
		return false
	}

	digits := make([]int, 0, 14)
	digits = append(digits, cmsPrefix[:]...)
	for i := 0; i < 10; i++ {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		digits = append(digits, int(c-'0'))
	}

	check := digits[len(digits)-1]
	body := digits[:len(digits)-1]

	sum := 0
	for i := 0; i < len(body); i++ {
		d := body[len(body)-1-i]
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10-sum%10)%10 == check
}
