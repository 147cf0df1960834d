package handlers

import (
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/ai"
	"github.com/aurumlabs/tokenchat/internal/chat"
	"github.com/aurumlabs/tokenchat/internal/config"
	"github.com/aurumlabs/tokenchat/internal/enrich"
	"github.com/aurumlabs/tokenchat/internal/session"
	"github.com/aurumlabs/tokenchat/internal/store/redisstore"
	"github.com/aurumlabs/tokenchat/internal/tier"
	"github.com/aurumlabs/tokenchat/internal/voice"
)

type Handler struct {
	DB  *gorm.DB
	Cfg config.Config

	Sessions *session.Repo
	Limiter  *session.Limiter
	Oracle   *tier.Oracle

	ChatSvc *chat.Service
	Gateway *enrich.Gateway
	Logs    *enrich.LogRepo

	Synth       *voice.ElevenLabs
	Coordinator *voice.Coordinator
	Audio       *voice.Repo
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, summaries chat.SummaryPublisher) (*Handler, error) {
	routes, err := enrich.NewRoutes(cfg.N8NBaseURL)
	if err != nil {
		return nil, err
	}
	logs := enrich.NewLogRepo(db)
	gateway := enrich.NewGateway(routes, logs, cfg.WebhookTimeout)

	sessions := session.NewRepo(db)
	limiter := session.NewLimiter(sessions)

	oracle := tier.NewOracle(
		tier.NewSolanaClient(cfg.SolanaRPCURL, cfg.TokenMint),
		rds,
	)

	provider := ai.NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
	chatSvc := chat.NewService(chat.NewRepo(db), limiter, gateway, provider, summaries)

	synth := voice.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModel)
	audio := voice.NewRepo(db)
	coordinator := voice.NewCoordinator(synth, gateway, audio)

	return &Handler{
		DB:          db,
		Cfg:         cfg,
		Sessions:    sessions,
		Limiter:     limiter,
		Oracle:      oracle,
		ChatSvc:     chatSvc,
		Gateway:     gateway,
		Logs:        logs,
		Synth:       synth,
		Coordinator: coordinator,
		Audio:       audio,
	}, nil
}
