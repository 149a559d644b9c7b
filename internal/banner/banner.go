package banner

import (
	"wsoak/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
                              __  
 _      ___________  ____ _/ /__
| | /| / / ___/ __ \/ __ '/ //_/
| |/ |/ (__  ) /_/ / /_/ / ,<   
|__/|__/____/\____/\__,_/_/|_|  `

	return "\n" + style.Render(ascii) + "\n"
}
