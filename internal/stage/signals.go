package stage

import (
	"regexp"
	"strconv"
)

// Keyword tables. Phrases are matched with Text.Has, so accents and case
// do not matter.
var (
	leadPhrases = []string{
		"oi", "olá", "bom dia", "boa tarde", "boa noite",
		"o que é", "me fale sobre", "quem é você", "como funciona o app",
	}

	specialistPhrases = []string{
		"preciso de ajuda", "estou com dificuldade", "não consigo", "problema com",
		"tenho lutado", "ansiedade", "depressão", "peso", "alimentação",
		"físico", "emocional",
	}

	sellerPhrases = []string{
		"quero testar", "teste grátis", "como funciona", "quanto custa",
		"preço", "assinar", "começar", "cadastro", "quero começar",
	}

	partnerPhrases = []string{
		"check-in", "como foi", "consegui", "fiz o treino", "bebi água",
		"segui o plano", "como estou",
	}

	// purchasePhrases are explicit buying statements strong enough to skip
	// the single-step progression.
	purchasePhrases = []string{
		"quero assinar", "vou assinar", "quero comprar", "quero contratar",
		"quero fechar", "como faço para pagar", "como pago", "me manda o link",
		"manda o link de pagamento", "quero o plano premium",
	}

	// subscriptionPhrases confirm that the purchase already happened.
	subscriptionPhrases = []string{
		"já assinei", "acabei de assinar", "assinatura confirmada",
		"cadastro confirmado", "já me cadastrei", "pagamento feito",
		"pagamento aprovado", "já paguei",
	}

	bantBudgetPhrases = []string{
		"quanto custa", "preço", "valor", "investimento", "mensalidade",
		"caro", "barato", "cabe no bolso", "pagar",
	}

	bantAuthorityPhrases = []string{
		"eu decido", "eu mesmo", "eu mesma", "minha decisão", "meu dinheiro",
		"posso decidir",
	}

	bantNeedPhrases = []string{
		"preciso", "necessito", "quero melhorar", "quero perder", "quero ganhar",
		"ajuda",
	}

	bantTimelinePhrases = []string{
		"hoje", "agora", "essa semana", "esta semana", "amanhã", "já",
		"o quanto antes", "urgente", "ainda hoje",
	}

	interestPhrases = []string{
		"quero", "preciso", "ajuda", "ajudar", "melhorar", "arrumar", "corrigir",
	}

	planPhrases = []string{
		"plano", "treino", "dieta", "rotina", "cardápio",
	}

	adjustPhrases = []string{
		"ajustar", "ajuste", "mudar", "alterar", "regenerar", "refazer", "recriar",
	}

	// painVocabulary gates the intensity-word fallback of PainLevel.
	painVocabulary = []string{
		"dor", "dores", "dificuldade", "sofro", "sofrendo", "cansado", "cansada",
		"ansioso", "ansiosa", "triste", "mal",
	}

	negation = []string{"não"}
)

// stageMarkers are assistant phrases that accompanied a stage transition.
// The most recent marker in history is treated as the last stage change.
var stageMarkers = []string{
	"vou te conectar com nosso especialista",
	"testar gratuitamente",
	"planos foram gerados",
	"bem-vindo ao vida smart coach",
	"cadastro confirmado",
}

var painScale = regexp.MustCompile(`(\d+)\s*/\s*10|(\d+) de 10|nivel (\d+)`)

// BANT holds the qualification signals found in the latest message.
type BANT struct {
	Budget    bool `json:"budget"`
	Authority bool `json:"authority"`
	Need      bool `json:"need"`
	Timeline  bool `json:"timeline"`
}

// Count returns how many BANT dimensions are present.
func (b BANT) Count() int {
	n := 0
	for _, v := range []bool{b.Budget, b.Authority, b.Need, b.Timeline} {
		if v {
			n++
		}
	}
	return n
}

// Signals are the raw keyword counts extracted from one message plus the
// history length.
type Signals struct {
	Lead       int `json:"lead"`
	Specialist int `json:"specialist"`
	Seller     int `json:"seller"`
	Partner    int `json:"partner"`

	PurchaseIntent        bool `json:"purchaseIntent"`
	SubscriptionConfirmed bool `json:"subscriptionConfirmed"`
	PlanAdjustmentIntent  bool `json:"planAdjustmentIntent"`
	InterestKeywords      bool `json:"interestKeywords"`
	PlanKeywords          bool `json:"planKeywords"`

	BANT      BANT `json:"bant"`
	PainLevel int  `json:"painLevel"`
}

func scanSignals(msg Text, historyLen int, th Thresholds) Signals {
	var s Signals

	s.PainLevel = PainLevel(msg)

	s.Lead = msg.Count(leadPhrases)
	if len([]rune(msg.Raw())) < th.ShortMessageRunes && !msg.HasAny(negation) {
		s.Lead++
	}

	s.Specialist = msg.Count(specialistPhrases)
	if s.PainLevel >= th.PainSignalLevel {
		s.Specialist++
	}

	s.Seller = msg.Count(sellerPhrases)

	s.Partner = msg.Count(partnerPhrases)
	if historyLen >= th.PartnerHistoryTurns {
		s.Partner++
	}

	s.PurchaseIntent = msg.HasAny(purchasePhrases)
	s.SubscriptionConfirmed = msg.HasAny(subscriptionPhrases)

	s.BANT = BANT{
		Budget:    msg.HasAny(bantBudgetPhrases),
		Authority: msg.HasAny(bantAuthorityPhrases),
		Need:      msg.HasAny(bantNeedPhrases),
		Timeline:  msg.HasAny(bantTimelinePhrases),
	}

	s.InterestKeywords = msg.HasAny(interestPhrases)
	s.PlanKeywords = msg.HasAny(planPhrases)
	s.PlanAdjustmentIntent = (msg.HasAny(adjustPhrases) && s.PlanKeywords) || msg.Has("novo plano")

	return s
}

// PainLevel returns the self-reported pain on a 0-10 scale. Explicit
// scales ("8/10", "7 de 10", "nível 9") win; otherwise intensity words
// count only when the message talks about pain or difficulty. The
// neutral default is 5.
func PainLevel(msg Text) int {
	if m := painScale.FindStringSubmatch(msg.Folded()); m != nil {
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if n, err := strconv.Atoi(g); err == nil {
				return n
			}
		}
	}

	if !msg.HasAny(painVocabulary) {
		return 5
	}
	switch {
	case msg.HasAny([]string{"muito", "muita", "demais", "insuportável"}):
		return 8
	case msg.HasAny([]string{"bastante"}):
		return 7
	case msg.HasAny([]string{"um pouco", "às vezes"}):
		return 4
	}
	return 5
}
