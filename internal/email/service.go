package email

import (
	"fmt"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"

	"github.com/proprios/search-api/internal/config"
	"github.com/proprios/search-api/pkg/logger"
)

// Service sends transactional mail over SMTP.
type Service struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

func NewService(cfg config.SMTPConfig, log *logger.Logger) *Service {
	return &Service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: log,
	}
}

// NotifyEnrichmentComplete tells the requester their contact lookup run is
// done.
func (s *Service) NotifyEnrichmentComplete(to string, searchID uuid.UUID, success, failed int) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Votre enrichissement de contacts est terminé")
	m.SetBody("text/html", fmt.Sprintf(`
		<p>L'enrichissement de votre recherche est terminé.</p>
		<ul>
			<li>Contacts trouvés : %d</li>
			<li>Contacts introuvables : %d</li>
		</ul>
		<p>Référence : %s</p>
	`, success, failed, searchID))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send enrichment notification: %w", err)
	}
	s.logger.Info("enrichment notification sent", "to", to, "search_id", searchID.String())
	return nil
}
