package mapper

import "strings"

// The synonym corpus covers the header vocabulary of regional accounting
// exports: English, Macedonian and Serbian in both Latin and Cyrillic
// script. Keys are canonical target field names; values are normalized
// synonyms (see normalize).

var synonyms = map[string][]string{
	"name": {
		"ime", "naziv", "firma", "kompanija", "klient", "kupuvac", "kupac",
		"company", "company_name", "customer", "customer_name", "client", "client_name",
		"naziv_na_firma", "ime_na_klient", "partner",
	},
	"email": {
		"e_mail", "mail", "mejl", "e_posta", "eposta", "elektronska_posta", "email_adresa",
	},
	"phone": {
		"telefon", "tel", "mobilen", "mobile", "gsm", "telephone", "phone_number", "kontakt_telefon",
	},
	"tax_id": {
		"edb", "danocen_broj", "pib", "vat", "vat_number", "embs", "maticen_broj",
		"tax_number", "davcna_stevilka", "poreski_broj",
	},
	"contact_name": {
		"kontakt", "kontakt_lice", "contact", "contact_person", "lice_za_kontakt",
	},
	"website": {
		"web", "sajt", "web_strana", "url", "webstrana", "internet_strana",
	},
	"address_1": {
		"adresa", "ulica", "address", "street", "adresa_1", "ulica_i_broj", "sediste",
	},
	"address_2": {
		"adresa_2", "address_2", "dopolnitelna_adresa",
	},
	"city": {
		"grad", "mesto", "town", "naseleno_mesto",
	},
	"state": {
		"region", "oblast", "opstina", "province",
	},
	"zip": {
		"postenski_broj", "posta", "zip_code", "postal_code", "pk", "post_broj",
	},
	"country": {
		"drzava", "zemja", "country_code", "država",
	},
	"invoice_number": {
		"faktura", "broj_faktura", "broj_na_faktura", "br_faktura", "br_fakture",
		"invoice_no", "invoice_num", "racun", "smetka", "broj_smetka", "broj_dokument",
		"dokument_broj", "fak_broj",
	},
	"customer_name": {
		"klient", "kupuvac", "kupac", "customer", "client", "naziv_na_klient", "partner",
	},
	"invoice_date": {
		"datum", "datum_faktura", "datum_na_faktura", "datum_dokument", "data",
		"date", "issue_date", "datum_izdavanje",
	},
	"due_date": {
		"rok", "valuta", "datum_dospevanje", "datum_na_dospevanje", "rok_plakanje",
		"rok_na_plakanje", "payment_due", "dospeva",
	},
	"sub_total": {
		"osnovica", "iznos_bez_ddv", "neto", "neto_iznos", "subtotal", "osnova_za_ddv",
	},
	"tax": {
		"ddv", "danok", "pdv", "iznos_ddv", "ddv_iznos", "tax_amount", "vat_amount",
	},
	"total": {
		"vkupno", "iznos", "ukupno", "suma", "total_amount", "vkupen_iznos",
		"iznos_so_ddv", "bruto", "za_plakanje",
	},
	"status": {
		"sostojba", "platena", "paid",
	},
	"notes": {
		"zabeleska", "zabeleski", "komentar", "opis_dokument", "napomena", "remark",
	},
	"description": {
		"opis", "opis_na_artikal", "detali",
	},
	"price": {
		"cena", "edinecna_cena", "cena_bez_ddv", "unit_price", "prodazna_cena",
	},
	"unit_name": {
		"edinica", "merka", "edinica_merka", "em", "unit", "merna_edinica",
	},
	"sku": {
		"sifra", "kod", "artikal_broj", "sifra_na_artikal", "code", "item_code", "barkod",
	},
	"payment_number": {
		"broj_uplata", "broj_na_uplata", "uplata", "payment_no", "izvod_broj",
	},
	"payment_date": {
		"datum_plakanje", "datum_na_plakanje", "datum_uplata", "datum_uplate", "date_paid",
	},
	"amount": {
		"iznos", "suma", "plateno", "uplaten_iznos", "vrednost", "paid_amount",
	},
	"payment_method": {
		"nacin_plakanje", "nacin_na_plakanje", "metod", "payment_type", "nacin_uplate",
	},
	"reference_number": {
		"povikuvanje_na_broj", "referenca", "poziv_na_broj", "reference",
	},
	"expense_number": {
		"broj_trosok", "broj_na_trosok", "expense_no",
	},
	"expense_category": {
		"kategorija", "vid_trosok", "vid_na_trosok", "category", "tip_trosok",
	},
	"expense_date": {
		"datum_trosok", "datum_na_trosok",
	},
	"vendor": {
		"dobavuvac", "dobavljac", "snabduvac", "supplier", "prodavac",
	},
}

// sourcePatterns holds exact header mappings for known competitor exports,
// keyed by the declared source-system tag. These short-circuit the heuristic
// with full confidence.
var sourcePatterns = map[string]map[string]string{
	"onivo": {
		"naziv_na_partner": "name",
		"edb_na_partner":   "tax_id",
		"br_na_dokument":   "invoice_number",
		"datum_na_promet":  "invoice_date",
		"iznos_so_ddv":     "total",
		"iznos_bez_ddv":    "sub_total",
		"ddv":              "tax",
	},
	"megasoft": {
		"komitent":      "name",
		"danocen_broj":  "tax_id",
		"broj_faktura":  "invoice_number",
		"datum_izdaden": "invoice_date",
		"datum_valuta":  "due_date",
		"osnovica":      "sub_total",
		"vkupno":        "total",
	},
	"pantheon": {
		"acname":     "name",
		"acsubject":  "customer_name",
		"ackey":      "invoice_number",
		"addate":     "invoice_date",
		"addatedue":  "due_date",
		"annetto":    "sub_total",
		"anvat":      "tax",
		"antotal":    "total",
		"acident":    "sku",
		"acunit":     "unit_name",
		"anprice":    "price",
		"acfieldsa":  "notes",
		"acsupplier": "vendor",
	},
}

// cyrillicToLatin transliterates the Macedonian and Serbian Cyrillic
// alphabets so both scripts normalize to the same token.
var cyrillicToLatin = strings.NewReplacer(
	"а", "a", "б", "b", "в", "v", "г", "g", "д", "d", "ѓ", "gj", "ђ", "dj",
	"е", "e", "ж", "z", "з", "z", "ѕ", "dz", "и", "i", "ј", "j", "к", "k",
	"л", "l", "љ", "lj", "м", "m", "н", "n", "њ", "nj", "о", "o", "п", "p",
	"р", "r", "с", "s", "т", "t", "ќ", "kj", "ћ", "c", "у", "u", "ф", "f",
	"х", "h", "ц", "c", "ч", "c", "џ", "dz", "ш", "s",
)

var diacriticsToASCII = strings.NewReplacer(
	"č", "c", "ć", "c", "š", "s", "ž", "z", "đ", "dj",
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ö", "o",
)

// normalize lowercases, transliterates and reduces a header to an
// underscore-separated token so comparisons are script and style agnostic.
func normalize(field string) string {
	s := strings.ToLower(strings.TrimSpace(field))
	s = cyrillicToLatin.Replace(s)
	s = diacriticsToASCII.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// synonymOrder fixes resolution priority for tokens that appear under more
// than one target ("iznos" is both total and amount, "klient" both name and
// customer_name). The entity filter usually disambiguates; within one
// entity the earlier target wins, never map iteration order.
var synonymOrder = []string{
	"name", "email", "phone", "tax_id", "contact_name", "website",
	"address_1", "address_2", "city", "state", "zip", "country",
	"invoice_number", "customer_name", "invoice_date", "due_date",
	"sub_total", "tax", "total", "status", "notes",
	"description", "price", "unit_name", "sku",
	"payment_number", "payment_date", "amount", "payment_method",
	"reference_number",
	"expense_number", "expense_category", "expense_date", "vendor",
}

// synonymTarget returns the first target, in corpus priority order, that is
// valid for the given target set and whose synonym list contains the
// normalized source name exactly, or empty.
func synonymTarget(normalized string, targets []TargetField) string {
	for _, target := range synonymOrder {
		if !targetExists(targets, target) {
			continue
		}
		for _, w := range synonyms[target] {
			if normalized == w {
				return target
			}
		}
	}
	return ""
}

// patternTarget consults the competitor export patterns for the declared
// source system.
func patternTarget(sourceSystem, normalized string) string {
	patterns, ok := sourcePatterns[strings.ToLower(sourceSystem)]
	if !ok {
		return ""
	}
	return patterns[normalized]
}
