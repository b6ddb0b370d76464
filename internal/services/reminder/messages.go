package reminder

import "fmt"

// composeReminder собирает заголовок и текст уведомления на языке
// пользователя. Поддерживаются en и lt; незнакомая локаль падает на en.
// Тон текста зависит от того, привязан ли способ оплаты: с картой мы
// обещаем автопродление, без карты просим оплатить.
func composeReminder(locale, planName string, daysLeft int, isTrial, hasPaymentMethod bool) (title, body string) {
	switch locale {
	case "lt":
		return composeLT(planName, daysLeft, isTrial, hasPaymentMethod)
	default:
		return composeEN(planName, daysLeft, isTrial, hasPaymentMethod)
	}
}

func composeEN(planName string, daysLeft int, isTrial, hasPaymentMethod bool) (string, string) {
	day := "days"
	if daysLeft == 1 {
		day = "day"
	}

	var title string
	if isTrial {
		title = fmt.Sprintf("Your %s trial ends in %d %s", planName, daysLeft, day)
	} else {
		title = fmt.Sprintf("Your %s subscription expires in %d %s", planName, daysLeft, day)
	}

	var body string
	switch {
	case isTrial && hasPaymentMethod:
		body = fmt.Sprintf("Your %s trial ends in %d %s. Your saved payment method will be charged automatically when the trial ends.", planName, daysLeft, day)
	case isTrial:
		body = fmt.Sprintf("Your %s trial ends in %d %s. Add a payment method to keep your plan, otherwise your account will switch to the free plan.", planName, daysLeft, day)
	case hasPaymentMethod:
		body = fmt.Sprintf("Your %s subscription expires in %d %s. It will renew automatically using your saved payment method.", planName, daysLeft, day)
	default:
		body = fmt.Sprintf("Your %s subscription expires in %d %s. Renew now to keep your plan, otherwise your account will switch to the free plan.", planName, daysLeft, day)
	}
	return title, body
}

func composeLT(planName string, daysLeft int, isTrial, hasPaymentMethod bool) (string, string) {
	day := lithuanianDays(daysLeft)

	var title string
	if isTrial {
		title = fmt.Sprintf("Jūsų %s bandomasis laikotarpis baigsis po %d %s", planName, daysLeft, day)
	} else {
		title = fmt.Sprintf("Jūsų %s prenumerata baigsis po %d %s", planName, daysLeft, day)
	}

	var body string
	switch {
	case isTrial && hasPaymentMethod:
		body = fmt.Sprintf("Jūsų %s bandomasis laikotarpis baigsis po %d %s. Pasibaigus laikotarpiui, mokestis bus nuskaitytas automatiškai nuo išsaugotos mokėjimo priemonės.", planName, daysLeft, day)
	case isTrial:
		body = fmt.Sprintf("Jūsų %s bandomasis laikotarpis baigsis po %d %s. Pridėkite mokėjimo priemonę, kad išlaikytumėte planą, kitaip paskyra bus perkelta į nemokamą planą.", planName, daysLeft, day)
	case hasPaymentMethod:
		body = fmt.Sprintf("Jūsų %s prenumerata baigsis po %d %s. Ji bus pratęsta automatiškai naudojant išsaugotą mokėjimo priemonę.", planName, daysLeft, day)
	default:
		body = fmt.Sprintf("Jūsų %s prenumerata baigsis po %d %s. Atnaujinkite dabar, kad išlaikytumėte planą, kitaip paskyra bus perkelta į nemokamą planą.", planName, daysLeft, day)
	}
	return title, body
}

// lithuanianDays возвращает форму слова "diena" для числительного.
func lithuanianDays(n int) string {
	if n%10 == 1 && n%100 != 11 {
		return "dienos"
	}
	return "dienų"
}
