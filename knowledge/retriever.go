// 本文件实现公司知识库的检索层。
// 知识库是一份内置的葡萄牙语文档语料，覆盖公司概况、服务、数仓结构、
// KPI、币种、项目、团队与技术栈，检索采用词项重合打分，无需外部向量服务。

package knowledge

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Anniext/askdata/core"

	"github.com/google/uuid"
)

// document 知识库中的一篇文档
type document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// seedDocuments 内置语料，系统启动即可用
var seedDocuments = []document{
	{
		ID: "company_overview",
		Content: "A Analytical Company é uma empresa de consultoria especializada em análise de dados e business intelligence. " +
			"Oferecemos serviços de desenvolvimento de projetos, análise de dados, implementação de soluções tecnológicas e consultoria estratégica. " +
			"Nossa equipe é composta por profissionais especializados em diversas tecnologias e metodologias de análise.",
		Metadata: map[string]string{"category": "empresa", "type": "overview"},
	},
	{
		ID: "services",
		Content: "Nossos principais serviços incluem: Desenvolvimento de projetos customizados, Análise de dados e Business Intelligence, " +
			"Consultoria em tecnologia, Implementação de soluções de Data Warehouse, Desenvolvimento de dashboards e relatórios, " +
			"Treinamento em ferramentas de análise, Suporte técnico especializado.",
		Metadata: map[string]string{"category": "servicos", "type": "lista"},
	},
	{
		ID: "data_warehouse",
		Content: "Nosso Data Warehouse é estruturado seguindo metodologias de modelagem dimensional. " +
			"Utilizamos tabelas de fatos e dimensões para otimizar consultas analíticas. As tabelas de fatos armazenam métricas quantitativas " +
			"como receita, horas trabalhadas e tickets, enquanto as dimensões fornecem contexto como clientes, funcionários, projetos e datas.",
		Metadata: map[string]string{"category": "tecnologia", "type": "data_warehouse"},
	},
	{
		ID: "kpis",
		Content: "Os principais KPIs que monitoramos incluem: Receita mensal e anual por cliente e projeto, " +
			"Utilização de recursos humanos (horas trabalhadas vs capacidade), Performance de SLA em tickets de suporte, " +
			"Margem de lucro por projeto, Taxa de crescimento de clientes, Produtividade por funcionário, " +
			"Tempo médio de resolução de tickets.",
		Metadata: map[string]string{"category": "metricas", "type": "kpis"},
	},
	{
		ID: "currencies",
		Content: "Trabalhamos com múltiplas moedas: BRL (Real Brasileiro), USD (Dólar Americano), EUR (Euro). " +
			"Todas as análises financeiras consideram conversões para USD como moeda base para comparações. " +
			"As taxas de câmbio são atualizadas regularmente para garantir precisão nas análises.",
		Metadata: map[string]string{"category": "financeiro", "type": "moedas"},
	},
	{
		ID: "projects",
		Content: "Nossos projetos são categorizados por tipo de contrato (fixo, por hora, retainer), " +
			"tecnologia principal utilizada, status (ativo, concluído, pausado) e cliente. " +
			"Cada projeto tem uma equipe dedicada e métricas de acompanhamento específicas.",
		Metadata: map[string]string{"category": "projetos", "type": "gestao"},
	},
	{
		ID: "teams",
		Content: "Nossa estrutura organizacional é dividida em departamentos especializados: " +
			"Desenvolvimento, Análise de Dados, Consultoria, Suporte, Vendas e Marketing. " +
			"Cada departamento tem equipes específicas com líderes e especialistas em diferentes tecnologias.",
		Metadata: map[string]string{"category": "organizacao", "type": "estrutura"},
	},
	{
		ID: "technologies",
		Content: "Utilizamos diversas tecnologias em nossos projetos: Python, SQL, JavaScript, React, Flask, " +
			"Power BI, Tableau, Apache Spark, Hadoop, AWS, Azure, Google Cloud, Docker, Kubernetes, " +
			"Machine Learning, Deep Learning, Natural Language Processing.",
		Metadata: map[string]string{"category": "tecnologia", "type": "stack"},
	},
}

// tokenPattern 匹配词项，保留 Unicode 字母与数字
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// stopwords 葡萄牙语高频虚词，不参与打分
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {},
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {}, "em": {},
	"no": {}, "na": {}, "nos": {}, "nas": {}, "que": {}, "qual": {},
	"quais": {}, "como": {}, "por": {}, "para": {}, "com": {},
	"e": {}, "ou": {}, "é": {}, "são": {}, "sobre": {}, "me": {},
}

// Retriever 内置语料检索器，实现 core.Retriever 接口
type Retriever struct {
	logger    core.Logger
	mutex     sync.RWMutex
	documents []document
}

// NewRetriever 创建检索器并装载内置语料
func NewRetriever(logger core.Logger) *Retriever {
	docs := make([]document, len(seedDocuments))
	copy(docs, seedDocuments)

	return &Retriever{
		logger:    logger,
		documents: docs,
	}
}

// Search 按词项重合度检索，返回得分最高的 limit 篇文档
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]*core.Passage, error) {
	if limit <= 0 {
		limit = 3
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	passages := make([]*core.Passage, 0, len(r.documents))
	for _, doc := range r.documents {
		score := overlapScore(queryTerms, tokenize(doc.Content))
		if score <= 0 {
			continue
		}
		passages = append(passages, &core.Passage{
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    score,
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})

	if len(passages) > limit {
		passages = passages[:limit]
	}

	if r.logger != nil {
		r.logger.Debug("知识库检索完成",
			"query_terms", len(queryTerms),
			"matches", len(passages),
		)
	}

	return passages, nil
}

// Add 向知识库追加一篇文档
func (r *Retriever) Add(content string, metadata map[string]string) string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	doc := document{
		ID:       uuid.New().String(),
		Content:  content,
		Metadata: metadata,
	}
	r.documents = append(r.documents, doc)
	return doc.ID
}

// DocumentCount 返回当前文档总数
func (r *Retriever) DocumentCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.documents)
}

// tokenize 切分并过滤词项
func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	terms := make([]string, 0, len(raw))
	for _, term := range raw {
		if _, skip := stopwords[term]; skip {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// overlapScore 计算查询词项在文档词项集中的命中比例
func overlapScore(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 || len(docTerms) == 0 {
		return 0
	}

	docSet := make(map[string]struct{}, len(docTerms))
	for _, term := range docTerms {
		docSet[term] = struct{}{}
	}

	matched := 0
	for _, term := range queryTerms {
		if _, ok := docSet[term]; ok {
			matched++
		}
	}

	return float64(matched) / float64(len(queryTerms))
}
