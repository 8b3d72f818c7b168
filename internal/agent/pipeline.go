package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/newsentiment/internal/agent/prompts"
	"github.com/seenimoa/newsentiment/internal/llm"
	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/internal/sentiment"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// PipelineName identifies the agent pipeline strategy in results and metrics.
const PipelineName = "agents"

// unavailableNote prefixes the reasoning of a soft-failed article.
const unavailableNote = "análisis no disponible"

// PipelineConfig tunes a PipelineScorer.
type PipelineConfig struct {
	Concurrency  int           // articles scored in parallel
	StageTimeout time.Duration // per stage, per article
	ChatOptions  *llm.ChatOptions
	Logger       *slog.Logger
}

// PipelineScorer scores articles through analyst → validator → explainer.
// Stages of one article run in order; articles run concurrently up to the
// configured limit. It never fails: an article whose pipeline breaks gets
// the neutral fallback judgment.
type PipelineScorer struct {
	analyst   *BaseAgent
	validator *BaseAgent
	explainer *BaseAgent

	concurrency  int
	stageTimeout time.Duration
	log          *slog.Logger
}

// NewPipelineScorer wires the three stage agents over one provider. The
// lexical scorer backs the analyst's score_headline tool.
func NewPipelineScorer(provider llm.LLMProvider, lexical *sentiment.LexicalScorer, cfg PipelineConfig) *PipelineScorer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if lexical == nil {
		lexical = sentiment.NewLexicalScorer()
	}

	return &PipelineScorer{
		analyst: NewBaseAgent(BaseAgentConfig{
			Name:         prompts.AgentAnalyst,
			Role:         "Analista de Sentimientos Senior",
			SystemPrompt: prompts.AnalystSystemPrompt,
			Provider:     provider,
			Tools:        []llm.Tool{scoreHeadlineTool(lexical)},
			ChatOptions:  cfg.ChatOptions,
			MaxToolIter:  3,
		}),
		validator: NewBaseAgent(BaseAgentConfig{
			Name:         prompts.AgentValidator,
			Role:         "Validador de Análisis",
			SystemPrompt: prompts.ValidatorSystemPrompt,
			Provider:     provider,
			ChatOptions:  cfg.ChatOptions,
			MaxToolIter:  1,
		}),
		explainer: NewBaseAgent(BaseAgentConfig{
			Name:         prompts.AgentExplainer,
			Role:         "Explicador de Análisis",
			SystemPrompt: prompts.ExplainerSystemPrompt,
			Provider:     provider,
			ChatOptions:  cfg.ChatOptions,
			MaxToolIter:  1,
		}),
		concurrency:  cfg.Concurrency,
		stageTimeout: cfg.StageTimeout,
		log:          cfg.Logger.With("component", "pipeline"),
	}
}

func (p *PipelineScorer) Name() string { return PipelineName }

// Score annotates every article. The result has the input's length and order.
func (p *PipelineScorer) Score(ctx context.Context, articles []models.Article) []models.Article {
	out := make([]models.Article, len(articles))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range articles {
		g.Go(func() error {
			out[i] = sentiment.Apply(articles[i], p.ScoreArticle(ctx, articles[i]))
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// ScoreArticle runs the three stages for one article and returns the
// normalized judgment, or the fallback judgment if any stage fails.
func (p *PipelineScorer) ScoreArticle(ctx context.Context, a models.Article) sentiment.Judgment {
	analysed, err := p.analyze(ctx, a)
	if err != nil {
		return p.fail(prompts.AgentAnalyst, a, err)
	}

	validated, err := p.validate(ctx, a, analysed)
	if err != nil {
		return p.fail(prompts.AgentValidator, a, err)
	}

	final, err := p.explain(ctx, a, validated)
	if err != nil {
		return p.fail(prompts.AgentExplainer, a, err)
	}
	return final
}

// ── Stages ──

func (p *PipelineScorer) analyze(ctx context.Context, a models.Article) (sentiment.Judgment, error) {
	content, err := p.runStage(ctx, p.analyst, prompts.AnalysisTask(a.Title, a.Description))
	if err != nil {
		return sentiment.Judgment{}, err
	}
	return ParseJudgment(content)
}

// validate asks the validator to confirm the analysis, then forces the label
// into the band of the score whatever the model answered.
func (p *PipelineScorer) validate(ctx context.Context, a models.Article, prior sentiment.Judgment) (sentiment.Judgment, error) {
	content, err := p.runStage(ctx, p.validator, prompts.ValidationTask(a.Title, judgmentJSON(prior)))
	if err != nil {
		return sentiment.Judgment{}, err
	}
	j, err := ParseJudgment(content)
	if err != nil {
		return sentiment.Judgment{}, err
	}

	if !j.Consistent() {
		p.log.Debug("validator label outside score band, correcting",
			"url", a.URL, "label", j.Label, "score", j.Score)
		j.Label = sentiment.BandFor(j.Score)
	}
	if j.Confidence == 0 {
		j.Confidence = prior.Confidence
	}
	if j.Reasoning == "" {
		j.Reasoning = prior.Reasoning
	}
	return j, nil
}

// explain replaces the reasoning with the explainer's prose. A JSON answer
// may also override label and score, but only with a band-consistent pair.
func (p *PipelineScorer) explain(ctx context.Context, a models.Article, validated sentiment.Judgment) (sentiment.Judgment, error) {
	content, err := p.runStage(ctx, p.explainer, prompts.ExplanationTask(a.Title, judgmentJSON(validated)))
	if err != nil {
		return sentiment.Judgment{}, err
	}

	final := validated
	if j, perr := ParseJudgment(content); perr == nil {
		if j.Consistent() {
			final.Label, final.Score = j.Label, j.Score
		}
		if j.Reasoning != "" {
			final.Reasoning = j.Reasoning
		}
		return final, nil
	}

	if prose := strings.TrimSpace(content); prose != "" {
		final.Reasoning = prose
	}
	return final, nil
}

func (p *PipelineScorer) runStage(ctx context.Context, stage *BaseAgent, task string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	start := time.Now()
	res, err := stage.Process(ctx, task)
	metrics.ObserveStage(stage.Name(), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s: %w", stage.Name(), err)
	}
	return res.Content, nil
}

func (p *PipelineScorer) fail(stage string, a models.Article, err error) sentiment.Judgment {
	metrics.RecordScoringFailure(stage)
	p.log.Warn("sentiment pipeline failed, using neutral default",
		"stage", stage, "url", a.URL, "error", err)
	return sentiment.Fallback(fmt.Sprintf("%s: %v", unavailableNote, err))
}

func judgmentJSON(j sentiment.Judgment) string {
	data, _ := json.MarshalIndent(j, "", "  ")
	return string(data)
}

// ── Tools ──

func scoreHeadlineTool(lexical *sentiment.LexicalScorer) llm.Tool {
	return llm.Tool{
		Name:        "score_headline",
		Description: "Puntuación léxica de referencia (0-5) para un titular en español, basada en palabras indicadoras positivas y negativas",
		Parameters: llm.ObjectSchema("Headline scoring parameters",
			map[string]*llm.JSONSchema{
				"headline": llm.StringProp("Texto del titular a puntuar"),
			},
			"headline",
		),
		Handler: func(_ context.Context, args json.RawMessage) (string, error) {
			var params struct {
				Headline string `json:"headline"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
			data, err := json.Marshal(lexical.ScoreText(params.Headline))
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}
