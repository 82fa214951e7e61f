// Package audience translates audience descriptions into composable SQL
// fragments over the contact and group stores.
//
// A Fragment is never executed on its own by this package. The materializer
// embeds it into its INSERT ... SELECT so that membership is evaluated
// against the same snapshot as the insert, and the estimator wraps it in a
// count.
package audience

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ignite/wa-outreach/internal/domain"
)

// Columns lists the columns every fragment yields, in order.
var Columns = []string{"contact_id", "wa_user_id", "phone_e164", "variables"}

// HandlePattern is the shape of a usable WhatsApp recipient handle.
const HandlePattern = `^[0-9]{10,15}$`

// PhonePattern is the loose international phone shape accepted from
// free-form contact phone fields.
const PhonePattern = `^\+?[0-9]{10,15}$`

// Fragment is a SELECT statement with its positional bind values.
type Fragment struct {
	SQL  string
	Args []interface{}
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Shift renumbers every $n placeholder to $n+offset so the fragment can be
// embedded after offset statement-level binds.
func (f Fragment) Shift(offset int) Fragment {
	if offset == 0 {
		return f
	}
	sql := placeholderRe.ReplaceAllStringFunc(f.SQL, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		return "$" + strconv.Itoa(n+offset)
	})
	return Fragment{SQL: sql, Args: f.Args}
}

// Count wraps the fragment into a single-row count query.
func (f Fragment) Count() Fragment {
	return Fragment{
		SQL:  "SELECT count(*) FROM (" + f.SQL + ") audience",
		Args: f.Args,
	}
}

// builder hands out positional placeholders in order.
type builder struct {
	args       []interface{}
	argCounter int
}

func newBuilder() *builder {
	return &builder{argCounter: 1}
}

func (b *builder) nextArg(value interface{}) string {
	b.args = append(b.args, value)
	placeholder := fmt.Sprintf("$%d", b.argCounter)
	b.argCounter++
	return placeholder
}

// Resolve returns the candidate-recipient fragment for spec within orgID.
// Unknown audience types fail with *domain.UnsupportedAudienceError.
func Resolve(orgID string, spec domain.AudienceSpec) (Fragment, error) {
	if err := spec.Validate(); err != nil {
		return Fragment{}, err
	}
	b := newBuilder()
	switch spec.Type {
	case domain.AudienceAllContacts:
		return b.allContacts(orgID), nil
	case domain.AudienceJoinedGroupRecent:
		return b.joinedGroupRecent(orgID, spec.Params), nil
	}
	// Validate already rejected everything else.
	return Fragment{}, &domain.UnsupportedAudienceError{Type: string(spec.Type)}
}

// contactHandleJoin resolves a contact's handle: a stored WhatsApp key
// first, then a parseable phone number with non-digits stripped.
func contactHandleJoin(contactAlias, outAlias string) string {
	return fmt.Sprintf(`
		LEFT JOIN LATERAL (
			SELECT k.value
			FROM crm_contact_keys k
			WHERE k.contact_id = %[1]s.id
			  AND k.kind = 'whatsapp_digits'
			  AND k.value ~ '%[3]s'
			ORDER BY k.value
			LIMIT 1
		) %[2]s_key ON true
		LEFT JOIN LATERAL (
			SELECT COALESCE(
				%[2]s_key.value,
				CASE WHEN %[1]s.phone_raw ~ '%[4]s'
				     THEN regexp_replace(%[1]s.phone_raw, '[^0-9]', '', 'g')
				END
			) AS handle
		) %[2]s ON true`, contactAlias, outAlias, HandlePattern, PhonePattern)
}

func (b *builder) allContacts(orgID string) Fragment {
	org := b.nextArg(orgID)
	sql := `
		SELECT c.id AS contact_id,
		       ch.handle AS wa_user_id,
		       '+' || ch.handle AS phone_e164,
		       jsonb_build_object('first_name', split_part(COALESCE(c.name, ''), ' ', 1)) AS variables
		FROM crm_contacts c` + contactHandleJoin("c", "ch") + `
		WHERE c.org_id = ` + org + `
		  AND c.optout_at IS NULL
		  AND ch.handle IS NOT NULL`
	return Fragment{SQL: sql, Args: b.args}
}

// emptyFragment yields the fragment columns and no rows.
func emptyFragment() Fragment {
	return Fragment{SQL: `
		SELECT NULL::uuid AS contact_id,
		       NULL::text AS wa_user_id,
		       NULL::text AS phone_e164,
		       NULL::jsonb AS variables
		WHERE false`}
}

func (b *builder) joinedGroupRecent(orgID string, p domain.AudienceParams) Fragment {
	ref := strings.TrimSpace(p.GroupRef)
	if ref == "" || ref == domain.GroupRefPlaceholder {
		return emptyFragment()
	}
	org := b.nextArg(orgID)
	group := b.nextArg(ref)
	days := b.nextArg(p.WindowDays())

	// Members keep their own handle when it is valid; otherwise the linked
	// contact's handle chain is used, and the raw member id as a last resort.
	sql := `
		WITH g AS (
			SELECT id, COALESCE(subject, name) AS group_name, wa_group_id
			FROM wpp_groups
			WHERE org_id = ` + org + `
			  AND (id::text = ` + group + ` OR wa_group_id = ` + group + `)
			LIMIT 1
		)
		SELECT m.contact_id,
		       h.handle AS wa_user_id,
		       CASE WHEN h.handle ~ '` + HandlePattern + `' THEN '+' || h.handle END AS phone_e164,
		       jsonb_build_object(
		           'first_name', split_part(COALESCE(c.name, ''), ' ', 1),
		           'group_name', g.group_name,
		           'wa_group_id', g.wa_group_id
		       ) AS variables
		FROM wpp_group_members m
		JOIN g ON g.id = m.group_id
		LEFT JOIN crm_contacts c ON c.id = m.contact_id AND c.org_id = ` + org +
		contactHandleJoin("c", "ch") + `
		CROSS JOIN LATERAL (
			SELECT CASE WHEN m.wa_user_id ~ '` + HandlePattern + `'
			            THEN m.wa_user_id
			            ELSE COALESCE(ch.handle, m.wa_user_id)
			       END AS handle
		) h
		WHERE m.is_member = true
		  AND COALESCE(m.last_join_at, m.first_join_at) >= now() - make_interval(days => ` + days + `::int)
		  AND (m.wa_user_id ~ '` + HandlePattern + `' OR m.contact_id IS NOT NULL)`
	return Fragment{SQL: sql, Args: b.args}
}
