package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/joonhok/newsagent/internal/agent/core"
	"github.com/joonhok/newsagent/internal/scrape"
	"github.com/joonhok/newsagent/internal/store"
)

type scrapeRequest struct {
	Sources    []string `json:"sources"`
	Categories []string `json:"categories"`
	Keywords   []string `json:"keywords"`
}

func (s *Server) handleScrape(c echo.Context) error {
	var req scrapeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.ingestor.Run(c.Request().Context(), scrape.Options{
		Sources:    req.Sources,
		Categories: req.Categories,
		Keywords:   req.Keywords,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleListArticles(c echo.Context) error {
	filter := store.ListFilter{
		Source:   c.QueryParam("source"),
		Category: c.QueryParam("category"),
		Keyword:  c.QueryParam("keyword"),
		Limit:    50,
	}
	switch c.QueryParam("sort") {
	case "", "newest":
	case "oldest":
		filter.Oldest = true
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "sort must be newest or oldest")
	}
	if raw := c.QueryParam("analyzed"); raw != "" {
		analyzed, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "analyzed must be a boolean")
		}
		filter.Analyzed = &analyzed
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1-500")
		}
		filter.Limit = limit
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "offset must be non-negative")
		}
		filter.Offset = offset
	}

	articles, err := s.store.ListArticles(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	if articles == nil {
		articles = []core.Article{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"articles": articles, "count": len(articles)})
}

func (s *Server) handleGetArticle(c echo.Context) error {
	art, err := s.store.GetArticle(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, art)
}

func (s *Server) handleAnalyzeArticle(c echo.Context) error {
	ctx := c.Request().Context()
	art, err := s.store.GetArticle(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	result, err := s.analyzer.Execute(ctx, core.AgentTask{
		ID:   uuid.New().String(),
		Type: core.TaskTypeAnalyze,
		Payload: core.ArticleInput{
			ID:          art.ID,
			Title:       art.Title,
			Body:        art.Body,
			Source:      art.Source,
			Category:    art.Category,
			PublishedAt: art.PublishedAt,
		},
	})
	if err != nil {
		return httpError(err)
	}
	if !result.Success {
		return agentError(result)
	}

	analysis, ok := result.Output["analysis"].(core.Analysis)
	if !ok {
		return echo.NewHTTPError(http.StatusBadGateway, "analyzer returned no analysis")
	}
	if err := s.store.UpdateArticleAnalysis(ctx, art.ID, analysis); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"analysis": analysis,
		"cost":     result.Cost,
	})
}

func (s *Server) handleMarketing(c echo.Context) error {
	ctx := c.Request().Context()
	art, err := s.store.GetArticle(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	result, err := s.marketing.Execute(ctx, core.AgentTask{
		ID:   uuid.New().String(),
		Type: core.TaskTypeMarketing,
		Payload: core.ArticleInput{
			ID:          art.ID,
			Title:       art.Title,
			Body:        art.Body,
			Source:      art.Source,
			Category:    art.Category,
			PublishedAt: art.PublishedAt,
			Analysis:    art.Analysis,
		},
	})
	if err != nil {
		return httpError(err)
	}
	if !result.Success {
		return agentError(result)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"posts": result.Output,
		"cost":  result.Cost,
	})
}

type batchAnalyzeRequest struct {
	Source string `json:"source"`
	Limit  int    `json:"limit"`
	Force  bool   `json:"force"`
}

func (s *Server) handleBatchAnalyze(c echo.Context) error {
	var req batchAnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	summary, err := s.batch.Run(c.Request().Context(), req.Source, req.Limit, req.Force)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type reportRequest struct {
	Source string `json:"source"`
	From   string `json:"from"` // RFC 3339 or YYYY-MM-DD
	To     string `json:"to"`
}

func (s *Server) handleReport(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	to := time.Now().UTC()
	if req.To != "" {
		parsed, err := parseDate(req.To)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -7)
	if req.From != "" {
		parsed, err := parseDate(req.From)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		from = parsed
	}
	if !from.Before(to) {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be before to")
	}

	ctx := c.Request().Context()
	analyzed := true
	articles, err := s.store.ListArticles(ctx, store.ListFilter{
		Source:   req.Source,
		Analyzed: &analyzed,
		Since:    from,
		Until:    to,
		Limit:    500,
	})
	if err != nil {
		return httpError(err)
	}

	result, err := s.reporter.Execute(ctx, core.AgentTask{
		ID:   uuid.New().String(),
		Type: core.TaskTypeReport,
		Payload: core.ReportInput{
			Articles: articles,
			Period:   from.Format("2006-01-02") + " ~ " + to.Format("2006-01-02"),
		},
	})
	if err != nil {
		return httpError(err)
	}
	if !result.Success {
		return agentError(result)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"report": result.Output["report"],
		"stats":  result.Output["stats"],
		"cost":   result.Cost,
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1-200")
		}
		limit = parsed
	}
	runs, err := s.store.ListScrapeRuns(c.Request().Context(), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	return t.UTC(), err
}

// httpError maps store sentinels to response codes.
func httpError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "article not found")
	}
	return err
}

// agentError maps an agent failure to a response code. Rate limits are
// retryable; everything else is an upstream failure.
func agentError(result core.AgentResult) error {
	msg := result.Error
	if msg == "" {
		msg = "agent failed"
	}
	if strings.Contains(msg, "llm rate_limit error") {
		return echo.NewHTTPError(http.StatusTooManyRequests, msg)
	}
	return echo.NewHTTPError(http.StatusBadGateway, msg)
}
