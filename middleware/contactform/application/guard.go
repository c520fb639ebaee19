package application

import "strings"

// CheckOrigin libera apenas quando o header declarado não é vazio e contém
// um dos hosts confiáveis (domínio do site, hosts de desenvolvimento local).
// Header vazio é negado (modo estrito).
func CheckOrigin(claimed string, trusted []string) bool {
	claimed = strings.TrimSpace(claimed)
	if claimed == "" {
		return false
	}
	claimed = strings.ToLower(claimed)
	for _, host := range trusted {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" && strings.Contains(claimed, host) {
			return true
		}
	}
	return false
}

// IsBot informa se o campo isca (escondido via CSS) foi preenchido.
func IsBot(decoy string) bool {
	return decoy != ""
}
