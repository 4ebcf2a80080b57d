package identify

import "fmt"

// TooLargeMessage — текст для пользователя при превышении лимита размера фото.
func TooLargeMessage(limit int64) string {
	return fmt.Sprintf("File is too large. Please choose an image smaller than %s.", HumanSize(limit))
}

// HumanSize: 10485760 → "10 MB", 1572864 → "1.5 MB", 2000 → "2 KB".
func HumanSize(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	if n >= mib {
		return fmt.Sprintf("%.1f MB", float64(n)/mib)
	}
	return fmt.Sprintf("%d KB", (n+1023)/1024)
}
